package show

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/dealscope/internal/database"
	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
)

func testRun() *database.RunRow {
	return &database.RunRow{
		ID:        1,
		RunID:     "run-acme-001",
		RunDir:    "/data/runs/acme-20260831-090000",
		State:     string(models.StateReportComplete),
		StartedAt: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 8, 31, 9, 12, 0, 0, time.UTC),
	}
}

func TestRenderIncludesFindingsAndReport(t *testing.T) {
	findings := []*database.FindingRow{
		{
			Severity:      models.SeverityCritical,
			RiskType:      "Revenue recognition",
			Description:   "Cutoff risk at quarter end",
			AffectedAreas: `["Finance","Earnings Quality"]`,
		},
	}
	rollup := []database.SeverityCount{{Severity: models.SeverityCritical, Count: 1}}
	rep := &schema.ReportResult{
		ReportMetadata:   schema.ReportMetadata{ReportID: "FDD-2026-0831-001"},
		ExecutiveSummary: schema.ReportExecutiveSummary{OverallRiskRating: models.SeverityHigh},
		EBITDABridge:     schema.ReportEBITDABridge{NormalizedEBITDA: 5264000},
		PriceAdjustments: schema.PriceAdjustments{TotalImpact: -715000},
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, testRun(), findings, rollup, rep))

	out := buf.String()
	assert.Contains(t, out, "Run run-acme-001")
	assert.Contains(t, out, "1 findings (critical 1, high 0, medium 0, low 0)")
	assert.Contains(t, out, "Revenue recognition")
	assert.Contains(t, out, "Finance, Earnings Quality")
	assert.Contains(t, out, "Report FDD-2026-0831-001")
	assert.Contains(t, out, "Risk Rating: HIGH")
	assert.Contains(t, out, "Normalized EBITDA: $5264000")
}

func TestRenderFailedRunWithoutReport(t *testing.T) {
	run := testRun()
	run.State = string(models.StateFailed)
	run.FailedStage = sql.NullString{String: string(models.StageReport), Valid: true}
	run.Partial = true

	var buf bytes.Buffer
	require.NoError(t, render(&buf, run, nil, nil, nil))

	out := buf.String()
	assert.Contains(t, out, "failed stage: report_generation")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "0 findings")
	assert.NotContains(t, out, "Report ")
}

func TestResolveRun(t *testing.T) {
	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	eng := models.NewEngagement("Acme Industrial Holdings", "Industrial Manufacturing")
	require.NoError(t, db.UpsertEngagement(ctx, *eng))
	rowID, err := db.CreateRun(ctx, &database.RunRow{
		EngagementID: eng.ID,
		RunID:        "run-acme-001",
		RunDir:       "/data/runs/acme-20260831-090000",
		State:        string(models.StateReportComplete),
		StartedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	require.NoError(t, err)

	byID, err := resolveRun(ctx, db, "run-acme-001")
	require.NoError(t, err)
	assert.Equal(t, rowID, byID.ID)

	byDir, err := resolveRun(ctx, db, "acme-20260831-090000")
	require.NoError(t, err)
	assert.Equal(t, rowID, byDir.ID)

	latest, err := resolveRun(ctx, db, "latest")
	require.NoError(t, err)
	assert.Equal(t, rowID, latest.ID)

	_, err = resolveRun(ctx, db, "no-such-run")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
