package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
	"github.com/harborview/dealscope/pkg/logger"
)

func testReport() *schema.ReportResult {
	return &schema.ReportResult{
		ReportMetadata: schema.ReportMetadata{
			ReportID:    "FDD-2026-0831-001",
			CompanyName: "Acme Industrial Holdings",
			ReportDate:  "2026-08-31",
			ReportType:  "financial_due_diligence",
		},
		ExecutiveSummary: schema.ReportExecutiveSummary{
			OverallRiskRating:        models.SeverityHigh,
			InvestmentRecommendation: "Proceed with adjusted valuation and expanded escrow.",
			CriticalIssues:           []string{"Unreconciled revenue variance of $45,000"},
			KeyHighlights:            []string{"Stable gross margins across the review period"},
		},
		EBITDABridge: schema.ReportEBITDABridge{
			ReportedEBITDA: 5000000,
			Adjustments: []schema.EBITDAAdjustment{
				{Category: "Owner compensation normalization", Amount: 200000, Defensibility: "high"},
				{Category: "One-time legal settlement", Amount: 50000, Defensibility: "medium"},
			},
			NormalizedEBITDA:     5250000,
			EBITDAMultipleImpact: 2000000,
		},
		QoESummary: schema.ReportQoESummary{
			TotalAddbacks:     250000,
			QualityAssessment: "Addbacks are largely defensible with supporting documentation.",
		},
		NWCSummary: schema.ReportNWCSummary{
			CurrentNWC:        2100000,
			RecommendedTarget: 2400000,
			AdjustmentImpact:  300000,
			ManipulationFlags: []string{"Payables stretched ahead of close"},
		},
		RedFlags: schema.RedFlagTiers{
			Critical: []string{"Q4 receivables spike outpacing revenue"},
			High:     []string{"Inventory turnover decline"},
		},
		SPANegotiationPoints: []schema.SPANegotiationPoint{
			{Topic: "NWC peg", Recommendation: "Set peg at normalized target", FinancialImpact: -300000, Priority: "high"},
		},
		PriceAdjustments: schema.PriceAdjustments{
			RecommendedValuationDiscount: -640000,
			NWCPegAdjustment:             -75000,
			TotalImpact:                  -715000,
			Rationale:                    "Reflects unresolved variance exposure and the NWC shortfall.",
		},
		NextSteps: []string{"Confirm AR aging with management", "Finalize escrow sizing"},
	}
}

func testInterview() *schema.InterviewPrepResult {
	return &schema.InterviewPrepResult{
		InterviewPrepSummary: schema.InterviewPrepSummary{
			TotalQuestionsGenerated: 2,
			FocusAreas:              []string{"Working Capital"},
		},
		QuestionSets: []schema.QuestionSet{
			{
				Category:       "Receivables",
				RelatedAnomaly: "Q4 AR spike",
				Severity:       models.SeverityCritical,
				Questions: []schema.InterviewQuestion{
					{Question: "What drove the Q4 increase in receivables?", Rationale: "AR grew 45% against 12% revenue growth."},
					{Question: "Were payment terms extended for any major customers?"},
				},
				ResponseNotes: map[int]string{0: "Management cites two late-quarter enterprise deals."},
			},
		},
		InterviewDurationEstimate: "2 hours",
	}
}

func testSnapshot(t *testing.T) *models.WorkflowSnapshot {
	t.Helper()

	reportJSON, err := json.Marshal(testReport())
	require.NoError(t, err)
	interviewJSON, err := json.Marshal(testInterview())
	require.NoError(t, err)

	eng := models.NewEngagement("Acme Industrial Holdings", "Industrial Manufacturing")
	eng.Documents = []models.DocumentRef{{Name: "Trial Balance FY2024"}}

	now := time.Now()
	return &models.WorkflowSnapshot{
		RunID:      "run-abc123",
		State:      models.StateReportComplete,
		Engagement: *eng,
		UpdatedAt:  now,
		Results: map[models.Stage]models.StageResult{
			models.StageInterviewPrep: {
				Stage: models.StageInterviewPrep, Status: models.StageSuccess,
				StartTime: now, EndTime: now, Output: interviewJSON,
			},
			models.StageReport: {
				Stage: models.StageReport, Status: models.StageSuccess,
				StartTime: now, EndTime: now, Output: reportJSON,
			},
		},
		Findings: &models.AggregatedFindings{
			TotalRedFlags:      2,
			CriticalIssues:     1,
			HighPriorityIssues: 1,
			CrossFunctionalRisks: []models.RiskFinding{
				*models.NewRiskFinding("Receivables spike", "AR up 45% in Q4", models.SeverityCritical,
					[]string{models.AreaWorkingCapital, models.AreaFinance}, models.StageNWC),
			},
			SingleFunctionRisks: []models.RiskFinding{
				*models.NewRiskFinding("Inventory obsolescence", "Slow-moving SKUs", models.SeverityHigh,
					[]string{models.AreaOperations}, models.StageNWC),
			},
		},
	}
}

func TestListFormats(t *testing.T) {
	formats := ListFormats()
	assert.Contains(t, formats, "markdown")
	assert.Contains(t, formats, "html")
	assert.Contains(t, formats, "json")
}

func TestGetFormatUnknown(t *testing.T) {
	_, err := GetFormat("docx", logger.NewMockLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown report format")
}

func TestReportFromSnapshot(t *testing.T) {
	snap := testSnapshot(t)

	rep, err := ReportFromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, "FDD-2026-0831-001", rep.ReportMetadata.ReportID)

	delete(snap.Results, models.StageReport)
	_, err = ReportFromSnapshot(snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completed report")
}

func TestInterviewFromSnapshotOptional(t *testing.T) {
	snap := testSnapshot(t)
	delete(snap.Results, models.StageInterviewPrep)

	prep, err := InterviewFromSnapshot(snap)
	require.NoError(t, err)
	assert.Nil(t, prep)
}

func TestMarkdownRender(t *testing.T) {
	gen := NewMarkdownGenerator(logger.NewMockLogger())

	content, err := gen.Render(testSnapshot(t))
	require.NoError(t, err)

	assert.Contains(t, content, "# Financial Due Diligence Report: Acme Industrial Holdings")
	assert.Contains(t, content, "**Overall Risk Rating:** HIGH")
	assert.Contains(t, content, "| Reported EBITDA | $5,000,000 | |")
	assert.Contains(t, content, "| **Normalized EBITDA** | **$5,250,000** | |")
	assert.Contains(t, content, "Owner compensation normalization")
	assert.Contains(t, content, "($640,000)")
	assert.Contains(t, content, "**Total impact: ($715,000)**")
	assert.Contains(t, content, "2 red flags identified: 1 critical, 1 high priority.")
	assert.Contains(t, content, "Receivables spike")
	assert.Contains(t, content, "Working Capital, Finance")
	assert.Contains(t, content, "## Management Interview Guide")
	assert.Contains(t, content, "1. What drove the Q4 increase in receivables?")
	assert.Contains(t, content, "Note: Management cites two late-quarter enterprise deals.")
	assert.Contains(t, content, "1. Confirm AR aging with management")
}

func TestMarkdownPartialBanner(t *testing.T) {
	snap := testSnapshot(t)
	snap.Findings.Partial = true
	snap.Findings.MissingStages = []models.Stage{models.StageQoE, models.StageNWC}

	content, err := NewMarkdownGenerator(logger.NewMockLogger()).Render(snap)
	require.NoError(t, err)
	assert.Contains(t, content, "missing stage outputs: qoe_analysis, nwc_analysis")
}

func TestMarkdownGenerateWritesFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "report.md")

	err := NewMarkdownGenerator(logger.NewMockLogger()).Generate(testSnapshot(t), outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Financial Due Diligence Report")
}

func TestHTMLGenerate(t *testing.T) {
	gen, err := NewHTMLGenerator(logger.NewMockLogger())
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, gen.Generate(testSnapshot(t), outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "FDD Report: Acme Industrial Holdings")
	assert.Contains(t, html, "severity-high")
	assert.Contains(t, html, "$5,250,000")
	assert.Contains(t, html, "What drove the Q4 increase in receivables?")
	assert.Contains(t, html, "run-abc123")
}

func TestHTMLGenerateWithoutReport(t *testing.T) {
	gen, err := NewHTMLGenerator(logger.NewMockLogger())
	require.NoError(t, err)

	snap := testSnapshot(t)
	delete(snap.Results, models.StageReport)

	err = gen.Generate(snap, filepath.Join(t.TempDir(), "report.html"))
	require.Error(t, err)
}

func TestJSONFormatRoundTrip(t *testing.T) {
	format, err := GetFormat("json", logger.NewMockLogger())
	require.NoError(t, err)
	assert.Equal(t, "json", format.Name())

	snap := testSnapshot(t)
	outPath := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, format.Generate(snap, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var loaded models.WorkflowSnapshot
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, snap.RunID, loaded.RunID)
	assert.Equal(t, snap.State, loaded.State)
	assert.Equal(t, 2, loaded.Findings.TotalRedFlags)
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{"positive", 5264000, "$5,264,000"},
		{"negative", -715000, "($715,000)"},
		{"zero", 0, "$0"},
		{"small", 42, "$42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMoney(tt.value))
		})
	}
}
