// Package report implements the report command for rendering completed runs.
package report

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harborview/dealscope/internal/database"
	"github.com/harborview/dealscope/internal/report"
	"github.com/harborview/dealscope/internal/storage"
	"github.com/harborview/dealscope/pkg/logger"
)

// Options represents report command options.
type Options struct {
	Run     string
	DataDir string
	Format  string
	Output  string
}

// Run executes the report command.
func Run(args []string) error {
	opts := &Options{}

	fs := flag.NewFlagSet("report", flag.ExitOnError)
	fs.StringVar(&opts.Run, "run", "latest", "Run directory to render, or 'latest'")
	fs.StringVar(&opts.DataDir, "data-dir", "data", "Data directory path")
	fs.StringVar(&opts.Format, "format", "markdown", fmt.Sprintf("Output format (%s)", strings.Join(report.ListFormats(), ", ")))
	fs.StringVar(&opts.Output, "output", "", "Output file path (defaults next to the run)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dealscope report [options]

Render a completed due diligence run as a deliverable document.

Options:`)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Examples:
  dealscope report --run latest --format html
  dealscope report --run data/runs/acme-20260831-090000 --format markdown
  dealscope report --format json --output /tmp/acme-snapshot.json`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logger.GetGlobalLogger()
	store := storage.NewStorageWithLogger(opts.DataDir, log)

	runDir := opts.Run
	if runDir == "latest" {
		latest, err := latestRunDir(context.Background(), opts.DataDir, store)
		if err != nil {
			return fmt.Errorf("finding latest run: %w", err)
		}
		runDir = latest
	}

	snap, err := store.LoadRun(runDir)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}

	format, err := report.GetFormat(opts.Format, log)
	if err != nil {
		return err
	}

	outputPath := opts.Output
	if outputPath == "" {
		outputPath = filepath.Join(runDir, "report."+extensionFor(opts.Format))
	}

	if err := format.Generate(snap, outputPath); err != nil {
		return fmt.Errorf("generating %s report: %w", opts.Format, err)
	}

	log.Info("Report written",
		"company", snap.Engagement.CompanyName,
		"format", opts.Format,
		"path", outputPath,
	)
	return nil
}

// latestRunDir resolves the newest run, preferring the SQLite index and
// falling back to a directory scan when the index is absent or empty.
func latestRunDir(ctx context.Context, dataDir string, store *storage.Storage) (string, error) {
	dbPath := filepath.Join(dataDir, "dealscope.db")
	if _, err := os.Stat(dbPath); err == nil {
		dir, err := latestFromIndex(ctx, dbPath)
		if err == nil {
			return dir, nil
		}
		logger.Warn("Index unavailable; scanning run directories", "error", err)
	}
	return store.FindLatestRun()
}

func latestFromIndex(ctx context.Context, dbPath string) (string, error) {
	db, err := database.New(dbPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()

	summaries, err := db.ListRunSummaries(ctx, "", 1)
	if err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "", fmt.Errorf("no indexed runs: %w", database.ErrNotFound)
	}
	return summaries[0].RunDir, nil
}

func extensionFor(format string) string {
	switch format {
	case "markdown":
		return "md"
	case "html":
		return "html"
	default:
		return "json"
	}
}
