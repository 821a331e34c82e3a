// Package analyze implements the analyze command, which runs the full due
// diligence pipeline for one engagement.
package analyze

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/harborview/dealscope/internal/agent"
	"github.com/harborview/dealscope/internal/config"
	"github.com/harborview/dealscope/internal/database"
	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
	"github.com/harborview/dealscope/internal/storage"
	"github.com/harborview/dealscope/internal/workflow"
	"github.com/harborview/dealscope/pkg/logger"
)

var (
	configFile string
	driverName string
	dataDir    string
	mock       bool
	noIndex    bool
)

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the due diligence pipeline for an engagement",
		Long: `Run the full financial due diligence pipeline for an engagement.

The pipeline invokes the coordinator stage against the data room documents,
validates and aggregates its findings into cross-functional risks, generates
a management interview guide, and synthesizes the final report. Every stage
output is validated before it is accepted; derived financial figures are
recomputed locally and never trusted from stage output.

Results are stored under the data directory and indexed in SQLite for fast
listing across engagements.`,
		Example: `  # Run the pipeline for an engagement
  dealscope analyze --config engagement-acme.yaml

  # Run offline against canned stage fixtures
  dealscope analyze --config engagement-acme.yaml --mock

  # Store results somewhere other than ./data
  dealscope analyze --config engagement-acme.yaml --data-dir /srv/dealscope`,
		RunE: runAnalyze,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Engagement configuration file (required)")
	cmd.Flags().StringVar(&driverName, "driver", "", "Stage driver to use (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	cmd.Flags().BoolVar(&mock, "mock", false, "Use the mock driver with canned stage fixtures")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Skip indexing the run in SQLite")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	log := logger.GetGlobalLogger()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	name := cfg.DriverName()
	if driverName != "" {
		name = driverName
	}
	if mock {
		name = "mock"
	}

	driver, err := agent.DefaultRegistry.Get(name)
	if err != nil {
		return err
	}
	if len(cfg.Driver.Settings) > 0 {
		if err := driver.Configure(cfg.Driver.Settings); err != nil {
			return fmt.Errorf("configuring driver %s: %w", name, err)
		}
	}

	eng := cfg.ToEngagement()
	log = logger.WithEngagement(eng.CompanyName, eng.Industry)
	orch, err := workflow.New(eng, driver, workflow.Options{
		Validator:    schema.NewValidator(cfg.Thresholds(), cfg.Analysis.EBITDAMultiple),
		Logger:       log,
		StageTimeout: cfg.Driver.Timeout.Std(),
		StageIDs:     cfg.StageIDs(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log.Info("Starting due diligence pipeline",
		"documents", len(eng.Documents),
		"driver", name,
	)

	pipelineErr := runPipeline(ctx, orch, log)

	// The run is saved even when a stage failed; a failed snapshot is what
	// makes retry and postmortem possible.
	snap := orch.Snapshot()
	baseDir := cfg.DataDir
	if dataDir != "" {
		baseDir = dataDir
	}
	if baseDir == "" {
		baseDir = "data"
	}

	store := storage.NewStorageWithLogger(baseDir, log)
	runDir, err := store.SaveRun(storage.RunDirName(eng, time.Now()), &snap)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	log.Info("Run saved", "path", runDir)

	if !noIndex {
		if err := indexRun(ctx, baseDir, runDir, &snap); err != nil {
			log.Warn("Failed to index run", "error", err)
		}
	}

	if pipelineErr != nil {
		return pipelineErr
	}

	log.Info("Pipeline complete",
		"state", snap.State,
		"red_flags", snap.Findings.TotalRedFlags,
	)
	return nil
}

func runPipeline(ctx context.Context, orch *workflow.Orchestrator, log logger.Logger) error {
	if err := orch.StartExtraction(ctx); err != nil {
		return fmt.Errorf("extraction stage: %w", err)
	}
	findings := orch.Snapshot().Findings
	log.Info("Aggregation complete",
		"red_flags", findings.TotalRedFlags,
		"critical", findings.CriticalIssues,
		"partial", findings.Partial,
	)

	if err := orch.StartInterviewPrep(ctx); err != nil {
		return fmt.Errorf("interview prep stage: %w", err)
	}
	log.Info("Interview guide generated",
		"questions", orch.InterviewPrep().InterviewPrepSummary.TotalQuestionsGenerated,
	)

	report, err := orch.StartReport(ctx)
	if err != nil {
		return fmt.Errorf("report stage: %w", err)
	}
	log.Info("Report generated",
		"report_id", report.ReportMetadata.ReportID,
		"risk_rating", report.ExecutiveSummary.OverallRiskRating,
		"total_price_impact", report.PriceAdjustments.TotalImpact,
	)
	return nil
}

// indexRun records the saved run in the SQLite index. The filesystem copy is
// the source of truth; index failures degrade listing, not the run itself.
func indexRun(ctx context.Context, baseDir, runDir string, snap *models.WorkflowSnapshot) error {
	db, err := database.New(filepath.Join(baseDir, "dealscope.db"))
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.IndexSnapshot(ctx, runDir, snap)
	return err
}

// Run executes the analyze command.
func Run(args []string) error {
	cmd := NewAnalyzeCommand()
	cmd.SetArgs(args)
	return cmd.Execute()
}
