// Package list implements the list command for viewing previous runs.
package list

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harborview/dealscope/internal/database"
	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/storage"
	"github.com/harborview/dealscope/pkg/logger"
)

// Options represents list command options.
type Options struct {
	Company string
	DataDir string
	Format  string
	Limit   int
}

// Run executes the list command.
func Run(args []string) error {
	opts := &Options{}

	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.StringVar(&opts.Company, "company", "", "Filter by company name")
	fs.IntVar(&opts.Limit, "limit", 10, "Maximum number of runs to show")
	fs.StringVar(&opts.DataDir, "data-dir", "data", "Data directory path")
	fs.StringVar(&opts.Format, "format", "table", "Output format (table, json)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dealscope list [options]

List previous due diligence runs.

Options:`)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Examples:
  dealscope list
  dealscope list --company acme
  dealscope list --limit 20
  dealscope list --format json`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	runs, err := loadRuns(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		if opts.Company != "" {
			logger.Info("No runs found for company", "company", opts.Company)
		} else {
			logger.Info("No runs found")
		}
		return nil
	}

	switch opts.Format {
	case "json":
		return displayJSON(runs)
	default:
		return displayTable(runs)
	}
}

// loadRuns reads the SQLite index when present and falls back to scanning
// the run directories. Runs analyzed with --no-index only appear in the
// filesystem scan.
func loadRuns(ctx context.Context, opts *Options) ([]storage.RunInfo, error) {
	dbPath := filepath.Join(opts.DataDir, "dealscope.db")
	if _, err := os.Stat(dbPath); err == nil {
		runs, err := listFromIndex(ctx, dbPath, opts)
		if err == nil {
			return runs, nil
		}
		logger.Warn("Index unavailable; scanning run directories", "error", err)
	}
	return storage.NewStorage(opts.DataDir).ListRuns(opts.Company, opts.Limit)
}

func listFromIndex(ctx context.Context, dbPath string, opts *Options) ([]storage.RunInfo, error) {
	db, err := database.New(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	summaries, err := db.ListRunSummaries(ctx, opts.Company, opts.Limit)
	if err != nil {
		return nil, err
	}
	return summariesToRunInfo(summaries), nil
}

// summariesToRunInfo maps indexed summaries onto the listing shape the
// filesystem scan produces, so both paths render identically.
func summariesToRunInfo(summaries []database.RunSummary) []storage.RunInfo {
	runs := make([]storage.RunInfo, 0, len(summaries))
	for _, s := range summaries {
		runs = append(runs, storage.RunInfo{
			ID:            filepath.Base(s.RunDir),
			Path:          s.RunDir,
			CompanyName:   s.CompanyName,
			Industry:      s.Industry,
			State:         models.WorkflowState(s.State),
			TotalRedFlags: s.RedFlags,
			Partial:       s.Partial,
			UpdatedAt:     s.UpdatedAt,
		})
	}
	return runs
}

func displayTable(runs []storage.RunInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(w, "ID\tCOMPANY\tINDUSTRY\tSTATE\tRED FLAGS\tTIME AGO"); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 80)); err != nil {
		return fmt.Errorf("writing separator: %w", err)
	}

	for _, run := range runs {
		flags := fmt.Sprintf("%d", run.TotalRedFlags)
		if run.Partial {
			flags += " ⚠️"
		}

		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.CompanyName,
			run.Industry,
			run.State,
			flags,
			formatTimeAgo(run.UpdatedAt),
		); err != nil {
			return fmt.Errorf("writing run entry: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table writer: %w", err)
	}

	logger.Info("💡 Use 'dealscope report --run' to render a report", "run", runs[0].ID)

	return nil
}

func displayJSON(runs []storage.RunInfo) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(runs); err != nil {
		return fmt.Errorf("encoding runs: %w", err)
	}
	return nil
}

func formatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
