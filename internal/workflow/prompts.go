package workflow

import (
	"fmt"
	"strings"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
)

// PromptVersion identifies the prompt template revision in effect. Bump it
// whenever a template's structure changes so stored runs record which
// wording produced their outputs.
const PromptVersion = "v2"

// ExtractionPrompt renders the coordinator invocation from the engagement's
// document set.
func ExtractionPrompt(eng models.Engagement) string {
	names := make([]string, 0, len(eng.Documents))
	for _, doc := range eng.Documents {
		names = append(names, doc.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the uploaded VDR files for %s.", eng.CompanyName)
	if eng.Industry != "" {
		fmt.Fprintf(&b, " The target operates in the %s industry.", eng.Industry)
	}
	fmt.Fprintf(&b, " The data room includes: %s.", strings.Join(names, ", "))
	b.WriteString(" Run the full coordinated analysis: extraction, trial balance reconciliation, quality of earnings, and net working capital.")
	return b.String()
}

// InterviewPrepPrompt renders the interview-prep invocation from the
// aggregated findings. With no findings available it falls back to a
// generic anomaly prompt so a partial run can still produce questions.
func InterviewPrepPrompt(eng models.Engagement, findings *models.AggregatedFindings) string {
	if findings == nil || findings.TotalRedFlags == 0 {
		return fmt.Sprintf("Generate management interview questions for %s based on these anomalies: 45%% AR spike in Q4, payables stretched from 30 to 60 days, inventory turnover decline.", eng.CompanyName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on FDD analysis for %s:\n\n", eng.CompanyName)

	fmt.Fprintf(&b, "Critical Issues: %d\n", findings.CriticalIssues)
	fmt.Fprintf(&b, "High Priority Issues: %d\n\n", findings.HighPriorityIssues)

	if len(findings.CrossFunctionalRisks) > 0 {
		b.WriteString("Cross-Functional Risks:\n")
		for _, risk := range findings.CrossFunctionalRisks {
			fmt.Fprintf(&b, "- %s (%s): %s\n", risk.RiskType, risk.Severity, risk.Description)
		}
		b.WriteString("\n")
	}
	if len(findings.SingleFunctionRisks) > 0 {
		b.WriteString("Stage-Level Findings:\n")
		for _, risk := range findings.SingleFunctionRisks {
			fmt.Fprintf(&b, "- %s (%s): %s\n", risk.RiskType, risk.Severity, risk.Description)
		}
		b.WriteString("\n")
	}
	if findings.Partial {
		fmt.Fprintf(&b, "Note: findings are partial; missing stages: %s.\n\n", joinStages(findings.MissingStages))
	}

	b.WriteString("Generate targeted management interview questions based on these findings.")
	return b.String()
}

// ReportPrompt renders the report invocation from the coordinator output
// and the aggregated findings.
func ReportPrompt(eng models.Engagement, coordinator *schema.CoordinatorResult, findings *models.AggregatedFindings) string {
	if coordinator == nil {
		return fmt.Sprintf("Generate FDD report for %s. Reported EBITDA $5.0M, adjustments: CEO salary add-back $200k, legal settlement $50k, personal expenses $14k. Red flags: AR aging, payables stretching.", eng.CompanyName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate comprehensive FDD report for %s.\n\n", eng.CompanyName)

	summary := coordinator.ExecutiveSummary
	b.WriteString("EXECUTIVE SUMMARY:\n")
	fmt.Fprintf(&b, "- Overall Risk Rating: %s\n", summary.OverallRiskRating)
	fmt.Fprintf(&b, "- Key Findings: %s\n", strings.Join(summary.KeyFindings, "; "))
	fmt.Fprintf(&b, "- Deal Breakers: %s\n", strings.Join(summary.DealBreakers, "; "))
	fmt.Fprintf(&b, "- Negotiation Points: %s\n\n", strings.Join(summary.NegotiationPoints, "; "))

	if findings != nil {
		b.WriteString("AGGREGATED FINDINGS:\n")
		fmt.Fprintf(&b, "- Total Red Flags: %d\n", findings.TotalRedFlags)
		fmt.Fprintf(&b, "- Critical Issues: %d\n", findings.CriticalIssues)
		fmt.Fprintf(&b, "- High Priority Issues: %d\n\n", findings.HighPriorityIssues)

		if len(findings.CrossFunctionalRisks) > 0 {
			b.WriteString("CROSS-FUNCTIONAL RISKS:\n")
			for _, risk := range findings.CrossFunctionalRisks {
				fmt.Fprintf(&b, "- %s (%s): %s. Affected: %s. Action: %s\n",
					risk.RiskType, risk.Severity, risk.Description,
					strings.Join(risk.AffectedAreas, ", "), risk.RecommendedAction)
			}
			b.WriteString("\n")
		}
	}

	if qoe := coordinator.SubAgentResults.QoE; qoe != nil {
		b.WriteString("QUALITY OF EARNINGS:\n")
		fmt.Fprintf(&b, "- Reported EBITDA: %.0f\n", qoe.ReportedEBITDA)
		fmt.Fprintf(&b, "- Total Addbacks: %.0f\n", qoe.TotalAddbacks)
		fmt.Fprintf(&b, "- Normalized EBITDA: %.0f\n", qoe.NormalizedEBITDA)
		for _, cat := range qoe.AddbackCategories {
			fmt.Fprintf(&b, "- Addback: %s %.0f (%s defensibility)\n", cat.Category, cat.Amount, cat.Defensibility)
		}
		b.WriteString("\n")
	}
	if nwc := coordinator.SubAgentResults.NWC; nwc != nil {
		b.WriteString("NET WORKING CAPITAL:\n")
		fmt.Fprintf(&b, "- Current NWC: %.0f\n", nwc.NWCCalculation.NetWorkingCapital)
		fmt.Fprintf(&b, "- Recommended Target: %.0f\n", nwc.RecommendedNWCTarget.ProposedTarget)
		fmt.Fprintf(&b, "- Trend: %s\n\n", nwc.TrendAnalysis.TrendDirection)
	}

	if len(coordinator.NextSteps) > 0 {
		fmt.Fprintf(&b, "NEXT STEPS:\n%s\n\n", strings.Join(coordinator.NextSteps, "; "))
	}

	b.WriteString("Please generate a complete FDD report with EBITDA bridge analysis, QoE adjustments, NWC analysis, red flags summary, and SPA negotiation points.")
	return b.String()
}

func joinStages(stages []models.Stage) string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
