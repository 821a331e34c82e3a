// Package show implements the show command, which prints one indexed run
// in detail: its state, aggregated findings and headline report figures.
package show

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/harborview/dealscope/internal/database"
	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
)

// Options represents show command options.
type Options struct {
	Run     string
	DataDir string
}

// Run executes the show command.
func Run(args []string) error {
	opts := &Options{}

	fs := flag.NewFlagSet("show", flag.ExitOnError)
	fs.StringVar(&opts.Run, "run", "latest", "Run to show: a run id, a run directory name, or 'latest'")
	fs.StringVar(&opts.DataDir, "data-dir", "data", "Data directory path")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dealscope show [options]

Show an indexed run's findings and headline report figures.

Options:`)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Examples:
  dealscope show
  dealscope show --run acme-20260831-090000
  dealscope show --run latest --data-dir /srv/dealscope`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	dbPath := filepath.Join(opts.DataDir, "dealscope.db")
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no index at %s; run 'dealscope analyze' first", dbPath)
	}
	db, err := database.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	run, err := resolveRun(ctx, db, opts.Run)
	if err != nil {
		return err
	}

	findings, err := db.FindingsByRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("loading findings: %w", err)
	}
	rollup, err := db.SeverityRollup(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("loading severity rollup: %w", err)
	}
	rep, err := db.LatestReport(ctx, run.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("loading report: %w", err)
	}

	return render(os.Stdout, run, findings, rollup, rep)
}

// resolveRun accepts a workflow run id, a run directory name, or "latest".
func resolveRun(ctx context.Context, db *database.DB, ref string) (*database.RunRow, error) {
	if ref == "latest" {
		summaries, err := db.ListRunSummaries(ctx, "", 1)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		if len(summaries) == 0 {
			return nil, fmt.Errorf("no indexed runs")
		}
		return db.GetRun(ctx, summaries[0].ID)
	}

	run, err := db.GetRunByRunID(ctx, ref)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	summaries, err := db.ListRunSummaries(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	for _, s := range summaries {
		if filepath.Base(s.RunDir) == ref {
			return db.GetRun(ctx, s.ID)
		}
	}
	return nil, fmt.Errorf("run %s: %w", ref, database.ErrNotFound)
}

func render(w io.Writer, run *database.RunRow, findings []*database.FindingRow, rollup []database.SeverityCount, rep *schema.ReportResult) error {
	write := func(format string, args ...any) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	}

	if err := write("Run %s\n", run.RunID); err != nil {
		return err
	}
	if err := write("  Directory: %s\n", run.RunDir); err != nil {
		return err
	}
	state := run.State
	if run.FailedStage.Valid {
		state += fmt.Sprintf(" (failed stage: %s)", run.FailedStage.String)
	}
	if run.Partial {
		state += " ⚠️ partial"
	}
	if err := write("  State: %s\n", state); err != nil {
		return err
	}
	if err := write("  Started: %s\n  Updated: %s\n",
		run.StartedAt.Format("2006-01-02 15:04:05"),
		run.UpdatedAt.Format("2006-01-02 15:04:05"),
	); err != nil {
		return err
	}

	if err := write("\n%s\n", severityLine(rollup)); err != nil {
		return err
	}

	if len(findings) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(tw, "  SEVERITY\tRISK TYPE\tAREAS\tDESCRIPTION"); err != nil {
			return err
		}
		for _, f := range findings {
			if _, err := fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
				f.Severity,
				f.RiskType,
				areaList(f.AffectedAreas),
				truncate(f.Description, 60),
			); err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if rep != nil {
		if err := write("\nReport %s\n", rep.ReportMetadata.ReportID); err != nil {
			return err
		}
		if err := write("  Risk Rating: %s\n", strings.ToUpper(rep.ExecutiveSummary.OverallRiskRating)); err != nil {
			return err
		}
		if err := write("  Normalized EBITDA: $%.0f\n", rep.EBITDABridge.NormalizedEBITDA); err != nil {
			return err
		}
		if err := write("  Total Price Impact: $%.0f\n", rep.PriceAdjustments.TotalImpact); err != nil {
			return err
		}
	}
	return nil
}

// severityLine summarizes the rollup across every severity level, zero
// counts included, so runs are comparable at a glance.
func severityLine(rollup []database.SeverityCount) string {
	counts := make(map[string]int, len(rollup))
	total := 0
	for _, c := range rollup {
		counts[c.Severity] = c.Count
		total += c.Count
	}

	severities := models.ValidSeverities()
	parts := make([]string, 0, len(severities))
	for _, sev := range severities {
		parts = append(parts, fmt.Sprintf("%s %d", sev, counts[sev]))
	}
	return fmt.Sprintf("%d findings (%s)", total, strings.Join(parts, ", "))
}

// areaList flattens the stored JSON area array for display.
func areaList(areasJSON string) string {
	var areas []string
	if err := json.Unmarshal([]byte(areasJSON), &areas); err != nil {
		return areasJSON
	}
	return strings.Join(areas, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
