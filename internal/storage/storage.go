// Package storage handles persistence of workflow runs and their stage
// outputs.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/pkg/logger"
	"github.com/harborview/dealscope/pkg/pathutil"
)

// Storage handles saving and loading workflow runs. Each run lives in its
// own directory under <base>/runs/: a snapshot, per-stage raw outputs, the
// aggregated findings, and a human-readable run log.
type Storage struct {
	logger  logger.Logger
	baseDir string
}

// NewStorage creates a storage instance rooted at baseDir.
func NewStorage(baseDir string) *Storage {
	return NewStorageWithLogger(baseDir, logger.GetGlobalLogger())
}

// NewStorageWithLogger creates a storage instance with a custom logger.
func NewStorageWithLogger(baseDir string, log logger.Logger) *Storage {
	return &Storage{
		baseDir: baseDir,
		logger:  log,
	}
}

// BaseDir returns the storage root.
func (s *Storage) BaseDir() string {
	return s.baseDir
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// RunDirName builds the directory name for a run: company slug plus a
// sortable timestamp, so lexical order is chronological order.
func RunDirName(eng models.Engagement, at time.Time) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(eng.CompanyName), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "engagement"
	}
	return fmt.Sprintf("%s-%s", slug, at.UTC().Format("20060102-150405"))
}

// SaveRun persists a workflow snapshot to a run directory, creating it if
// needed. Returns the directory written.
func (s *Storage) SaveRun(dirName string, snapshot *models.WorkflowSnapshot) (string, error) {
	runsDir := filepath.Join(s.baseDir, "runs")
	runDir, err := pathutil.JoinAndValidate(runsDir, dirName)
	if err != nil {
		return "", fmt.Errorf("invalid run directory: %w", err)
	}

	if mkErr := os.MkdirAll(runDir, 0750); mkErr != nil {
		return "", fmt.Errorf("creating run directory: %w", mkErr)
	}
	rawDir := filepath.Join(runDir, "raw")
	if mkErr := os.MkdirAll(rawDir, 0750); mkErr != nil {
		return "", fmt.Errorf("creating raw directory: %w", mkErr)
	}

	snapshotPath, err := pathutil.JoinAndValidate(runDir, "snapshot.json")
	if err != nil {
		return "", fmt.Errorf("invalid snapshot path: %w", err)
	}
	if saveErr := s.saveJSON(snapshotPath, snapshot); saveErr != nil {
		return "", fmt.Errorf("saving snapshot: %w", saveErr)
	}
	s.logger.Debug("Saved snapshot", "path", snapshotPath)

	// Raw validated outputs, one file per stage that produced one.
	for stage, result := range snapshot.Results {
		if len(result.Output) == 0 {
			continue
		}
		rawPath, rawErr := pathutil.JoinAndValidate(rawDir, fmt.Sprintf("%s.json", stage))
		if rawErr != nil {
			s.logger.Warn("Invalid raw output path", "stage", stage, "error", rawErr)
			continue
		}
		if writeErr := os.WriteFile(rawPath, result.Output, 0600); writeErr != nil {
			s.logger.Warn("Failed to save raw output", "stage", stage, "error", writeErr)
		} else {
			s.logger.Debug("Saved raw output", "stage", stage, "path", rawPath)
		}
	}

	if snapshot.Findings != nil {
		findingsPath, findErr := pathutil.JoinAndValidate(runDir, "findings.json")
		if findErr != nil {
			return "", fmt.Errorf("invalid findings path: %w", findErr)
		}
		if saveErr := s.saveJSON(findingsPath, snapshot.Findings); saveErr != nil {
			return "", fmt.Errorf("saving findings: %w", saveErr)
		}
		s.logger.Debug("Saved findings", "path", findingsPath, "count", snapshot.Findings.TotalRedFlags)
	}

	logPath, err := pathutil.JoinAndValidate(runDir, "run.log")
	if err != nil {
		s.logger.Warn("Invalid run log path", "error", err)
		return runDir, nil
	}
	if err := s.saveRunLog(logPath, snapshot); err != nil {
		s.logger.Warn("Failed to save run log", "error", err)
	}

	return runDir, nil
}

// LoadRun loads a workflow snapshot from a run directory.
func (s *Storage) LoadRun(runDir string) (*models.WorkflowSnapshot, error) {
	validRunDir, err := pathutil.ValidateDataPath(runDir, "")
	if err != nil {
		return nil, fmt.Errorf("invalid run directory: %w", err)
	}

	snapshotPath, err := pathutil.JoinAndValidate(validRunDir, "snapshot.json")
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot path: %w", err)
	}

	var snapshot models.WorkflowSnapshot
	if loadErr := s.loadJSON(snapshotPath, &snapshot); loadErr != nil {
		return nil, fmt.Errorf("loading snapshot: %w", loadErr)
	}

	if snapshot.Results == nil {
		snapshot.Results = make(map[models.Stage]models.StageResult)
	}

	return &snapshot, nil
}

// LoadStageOutput loads one stage's raw validated output from a run
// directory.
func (s *Storage) LoadStageOutput(runDir string, stage models.Stage) (json.RawMessage, error) {
	rawPath, err := pathutil.JoinAndValidate(runDir, "raw", fmt.Sprintf("%s.json", stage))
	if err != nil {
		return nil, fmt.Errorf("invalid raw output path: %w", err)
	}
	data, err := os.ReadFile(rawPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("reading stage output: %w", err)
	}
	return json.RawMessage(data), nil
}

// FindLatestRun finds the most recent run directory.
func (s *Storage) FindLatestRun() (string, error) {
	runsDir := filepath.Join(s.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no runs found")
		}
		return "", fmt.Errorf("reading runs directory: %w", err)
	}

	var latest string
	for _, entry := range entries {
		if entry.IsDir() {
			if latest == "" || entry.Name() > latest {
				latest = entry.Name()
			}
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no run directories found")
	}

	return filepath.Join(runsDir, latest), nil
}

// RunInfo summarizes one stored run.
type RunInfo struct {
	UpdatedAt     time.Time
	ID            string
	Path          string
	CompanyName   string
	Industry      string
	State         models.WorkflowState
	TotalRedFlags int
	Partial       bool
}

// ListRuns returns stored runs, newest first, optionally filtered by
// company name.
func (s *Storage) ListRuns(company string, limit int) ([]RunInfo, error) {
	runsDir := filepath.Join(s.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	var runs []RunInfo
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if !entry.IsDir() {
			continue
		}

		snapshotPath, err := pathutil.JoinAndValidate(runsDir, entry.Name(), "snapshot.json")
		if err != nil {
			s.logger.Debug("Invalid snapshot path", "dir", entry.Name(), "error", err)
			continue
		}
		var snapshot models.WorkflowSnapshot
		if err := s.loadJSON(snapshotPath, &snapshot); err != nil {
			s.logger.Debug("Skipping invalid run directory", "dir", entry.Name(), "error", err)
			continue
		}

		if company != "" && snapshot.Engagement.CompanyName != company {
			continue
		}

		info := RunInfo{
			ID:          entry.Name(),
			Path:        filepath.Join(runsDir, entry.Name()),
			CompanyName: snapshot.Engagement.CompanyName,
			Industry:    snapshot.Engagement.Industry,
			State:       snapshot.State,
			UpdatedAt:   snapshot.UpdatedAt,
		}
		if snapshot.Findings != nil {
			info.TotalRedFlags = snapshot.Findings.TotalRedFlags
			info.Partial = snapshot.Findings.Partial
		}

		runs = append(runs, info)

		if limit > 0 && len(runs) >= limit {
			break
		}
	}

	return runs, nil
}

// saveJSON saves data as indented JSON to a file.
func (s *Storage) saveJSON(path string, data any) (err error) {
	file, err := os.Create(path) // #nosec G304 - path is validated by caller
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// loadJSON loads JSON data from a file.
func (s *Storage) loadJSON(path string, data any) (err error) {
	file, err := os.Open(path) // #nosec G304 - path is validated by caller
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return json.NewDecoder(file).Decode(data)
}

// saveRunLog writes a human-readable run summary.
func (s *Storage) saveRunLog(path string, snapshot *models.WorkflowSnapshot) (err error) {
	file, err := os.Create(path) // #nosec G304 - path is validated by caller
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := func(format string, args ...any) error {
		_, err := fmt.Fprintf(file, format, args...)
		return err
	}

	if err := w("Dealscope FDD Run Log\n=====================\n\n"); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := w("Company: %s\n", snapshot.Engagement.CompanyName); err != nil {
		return fmt.Errorf("writing company: %w", err)
	}
	if err := w("Industry: %s\n", snapshot.Engagement.Industry); err != nil {
		return fmt.Errorf("writing industry: %w", err)
	}
	if err := w("Run ID: %s\n", snapshot.RunID); err != nil {
		return fmt.Errorf("writing run id: %w", err)
	}
	if err := w("State: %s\n", snapshot.State); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if snapshot.FailedStage != "" {
		if err := w("Failed Stage: %s\n", snapshot.FailedStage); err != nil {
			return fmt.Errorf("writing failed stage: %w", err)
		}
	}
	if err := w("Updated: %s\n\n", snapshot.UpdatedAt.Format("2006-01-02 15:04:05")); err != nil {
		return fmt.Errorf("writing timestamp: %w", err)
	}

	if err := w("Stages:\n"); err != nil {
		return fmt.Errorf("writing stages header: %w", err)
	}
	for _, stage := range models.InvokedStages() {
		result, ok := snapshot.Results[stage]
		switch {
		case !ok:
			err = w("  - %s (not run)\n", stage)
		case result.Status == models.StageSuccess:
			err = w("  + %s (%s)\n", stage, result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
		default:
			err = w("  x %s (%s: %s)\n", stage, result.ErrorKind, result.Error)
		}
		if err != nil {
			return fmt.Errorf("writing stage status: %w", err)
		}
	}

	if snapshot.Findings != nil {
		f := snapshot.Findings
		if err := w("\nFindings:\n"); err != nil {
			return fmt.Errorf("writing findings header: %w", err)
		}
		if err := w("  Total Red Flags: %d\n", f.TotalRedFlags); err != nil {
			return fmt.Errorf("writing totals: %w", err)
		}
		if err := w("  Critical: %d\n  High Priority: %d\n", f.CriticalIssues, f.HighPriorityIssues); err != nil {
			return fmt.Errorf("writing severity counts: %w", err)
		}
		if f.Partial {
			if err := w("  Partial (missing: %v)\n", f.MissingStages); err != nil {
				return fmt.Errorf("writing partial marker: %w", err)
			}
		}
	}

	return nil
}
