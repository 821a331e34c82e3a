// Package report renders completed due-diligence runs into deliverable
// documents. Renderers read the validated stage outputs stored on a workflow
// snapshot; they never recompute financial figures.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
	"github.com/harborview/dealscope/pkg/logger"
	"github.com/harborview/dealscope/pkg/pathutil"
)

// Format represents a report rendering strategy.
type Format interface {
	// Generate renders the run to outputPath.
	Generate(snap *models.WorkflowSnapshot, outputPath string) error
	// Name returns the format identifier (e.g., "markdown", "html", "json").
	Name() string
	// Description returns a human-readable description of the format.
	Description() string
}

// FormatFactory creates instances of report formats.
type FormatFactory func(log logger.Logger) (Format, error)

var (
	formatRegistry = make(map[string]FormatFactory)
	registryMutex  sync.RWMutex
)

// RegisterFormat registers a new report format factory.
func RegisterFormat(name string, factory FormatFactory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if factory == nil {
		panic(fmt.Sprintf("report: RegisterFormat factory is nil for format %q", name))
	}
	if _, dup := formatRegistry[name]; dup {
		panic(fmt.Sprintf("report: RegisterFormat called twice for format %q", name))
	}
	formatRegistry[name] = factory
}

// GetFormat creates an instance of the specified report format.
func GetFormat(name string, log logger.Logger) (Format, error) {
	registryMutex.RLock()
	factory, exists := formatRegistry[name]
	registryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown report format: %s", name)
	}

	return factory(log)
}

// ListFormats returns a list of all registered format names.
func ListFormats() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	formats := make([]string, 0, len(formatRegistry))
	for name := range formatRegistry {
		formats = append(formats, name)
	}
	return formats
}

// ReportFromSnapshot decodes the stored report-generation output. The output
// was validated before it was recorded, so a decode failure means the
// snapshot itself is corrupt.
func ReportFromSnapshot(snap *models.WorkflowSnapshot) (*schema.ReportResult, error) {
	result, ok := snap.Result(models.StageReport)
	if !ok || result.Status != models.StageSuccess {
		return nil, fmt.Errorf("run %s has no completed report", snap.RunID)
	}

	var rep schema.ReportResult
	if err := json.Unmarshal(result.Output, &rep); err != nil {
		return nil, fmt.Errorf("decoding stored report: %w", err)
	}
	return &rep, nil
}

// InterviewFromSnapshot decodes the stored interview-prep output if the
// stage completed. A run without interview prep yields nil, not an error.
func InterviewFromSnapshot(snap *models.WorkflowSnapshot) (*schema.InterviewPrepResult, error) {
	result, ok := snap.Result(models.StageInterviewPrep)
	if !ok || result.Status != models.StageSuccess {
		return nil, nil
	}

	var prep schema.InterviewPrepResult
	if err := json.Unmarshal(result.Output, &prep); err != nil {
		return nil, fmt.Errorf("decoding stored interview prep: %w", err)
	}
	return &prep, nil
}

var moneyPrinter = message.NewPrinter(language.English)

// formatMoney renders a dollar amount with thousands separators. Negative
// amounts use accounting parentheses.
func formatMoney(v float64) string {
	if v < 0 {
		return moneyPrinter.Sprintf("($%.0f)", -v)
	}
	return moneyPrinter.Sprintf("$%.0f", v)
}

// jsonFormat writes the full workflow snapshot as indented JSON.
type jsonFormat struct {
	logger logger.Logger
}

func (f *jsonFormat) Generate(snap *models.WorkflowSnapshot, outputPath string) error {
	validPath, err := pathutil.ValidateOutputPath(outputPath)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(validPath), 0750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(validPath, data, 0600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	f.logger.Info("Generated JSON export", "path", outputPath)
	return nil
}

func (f *jsonFormat) Name() string { return "json" }

func (f *jsonFormat) Description() string {
	return "Raw workflow snapshot with all validated stage outputs"
}

// markdownFormat adapts MarkdownGenerator to the Format interface.
type markdownFormat struct {
	logger logger.Logger
}

func (f *markdownFormat) Generate(snap *models.WorkflowSnapshot, outputPath string) error {
	return NewMarkdownGenerator(f.logger).Generate(snap, outputPath)
}

func (f *markdownFormat) Name() string { return "markdown" }

func (f *markdownFormat) Description() string {
	return "Due diligence report as a Markdown document"
}

// htmlFormat adapts HTMLGenerator to the Format interface.
type htmlFormat struct {
	logger logger.Logger
}

func (f *htmlFormat) Generate(snap *models.WorkflowSnapshot, outputPath string) error {
	gen, err := NewHTMLGenerator(f.logger)
	if err != nil {
		return fmt.Errorf("creating HTML generator: %w", err)
	}
	return gen.Generate(snap, outputPath)
}

func (f *htmlFormat) Name() string { return "html" }

func (f *htmlFormat) Description() string {
	return "Styled HTML report for sharing with the deal team"
}

func init() {
	RegisterFormat("json", func(log logger.Logger) (Format, error) {
		return &jsonFormat{logger: log}, nil
	})
	RegisterFormat("markdown", func(log logger.Logger) (Format, error) {
		return &markdownFormat{logger: log}, nil
	})
	RegisterFormat("html", func(log logger.Logger) (Format, error) {
		return &htmlFormat{logger: log}, nil
	})
}
