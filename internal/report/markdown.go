package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
	"github.com/harborview/dealscope/pkg/logger"
	"github.com/harborview/dealscope/pkg/pathutil"
)

// MarkdownGenerator renders a completed run as a Markdown document.
type MarkdownGenerator struct {
	logger logger.Logger
}

// NewMarkdownGenerator creates a new Markdown report generator.
func NewMarkdownGenerator(log logger.Logger) *MarkdownGenerator {
	return &MarkdownGenerator{logger: log}
}

// Generate renders the run and writes it to outputPath.
func (g *MarkdownGenerator) Generate(snap *models.WorkflowSnapshot, outputPath string) error {
	validPath, err := pathutil.ValidateOutputPath(outputPath)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	content, err := g.Render(snap)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(validPath), 0750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(validPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	g.logger.Info("Generated Markdown report", "path", outputPath)
	return nil
}

// Render produces the Markdown document as a string.
func (g *MarkdownGenerator) Render(snap *models.WorkflowSnapshot) (string, error) {
	rep, err := ReportFromSnapshot(snap)
	if err != nil {
		return "", err
	}
	prep, err := InterviewFromSnapshot(snap)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# Financial Due Diligence Report: %s\n\n", rep.ReportMetadata.CompanyName)
	fmt.Fprintf(&b, "**Report ID:** %s  \n", rep.ReportMetadata.ReportID)
	fmt.Fprintf(&b, "**Report Date:** %s  \n", rep.ReportMetadata.ReportDate)
	if snap.Engagement.Industry != "" {
		fmt.Fprintf(&b, "**Industry:** %s  \n", snap.Engagement.Industry)
	}
	fmt.Fprintf(&b, "**Generated:** %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	writeExecutiveSummary(&b, &rep.ExecutiveSummary)
	writeEBITDABridge(&b, &rep.EBITDABridge)
	writeQoESummary(&b, &rep.QoESummary)
	writeNWCSummary(&b, &rep.NWCSummary)
	writeRedFlags(&b, &rep.RedFlags)
	writeFindings(&b, snap.Findings)
	writeInterviewPrep(&b, prep)
	writeSPAPoints(&b, rep.SPANegotiationPoints)
	writePriceAdjustments(&b, &rep.PriceAdjustments)
	writeNextSteps(&b, rep.NextSteps)

	return b.String(), nil
}

func writeExecutiveSummary(b *strings.Builder, s *schema.ReportExecutiveSummary) {
	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(b, "**Overall Risk Rating:** %s\n\n", strings.ToUpper(s.OverallRiskRating))
	if s.InvestmentRecommendation != "" {
		fmt.Fprintf(b, "%s\n\n", s.InvestmentRecommendation)
	}
	writeBulletSection(b, "### Key Highlights", s.KeyHighlights)
	writeBulletSection(b, "### Critical Issues", s.CriticalIssues)
	writeBulletSection(b, "### Value Drivers", s.ValueDrivers)
}

func writeEBITDABridge(b *strings.Builder, bridge *schema.ReportEBITDABridge) {
	b.WriteString("## EBITDA Bridge\n\n")
	b.WriteString("| Item | Amount | Defensibility |\n")
	b.WriteString("|------|-------:|---------------|\n")
	fmt.Fprintf(b, "| Reported EBITDA | %s | |\n", formatMoney(bridge.ReportedEBITDA))
	for _, adj := range bridge.Adjustments {
		fmt.Fprintf(b, "| %s | %s | %s |\n", adj.Category, formatMoney(adj.Amount), adj.Defensibility)
	}
	fmt.Fprintf(b, "| **Normalized EBITDA** | **%s** | |\n\n", formatMoney(bridge.NormalizedEBITDA))
	fmt.Fprintf(b, "Valuation impact at the deal multiple: %s\n\n", formatMoney(bridge.EBITDAMultipleImpact))
}

func writeQoESummary(b *strings.Builder, qoe *schema.ReportQoESummary) {
	b.WriteString("## Quality of Earnings\n\n")
	fmt.Fprintf(b, "**Total Addbacks:** %s\n\n", formatMoney(qoe.TotalAddbacks))
	if qoe.QualityAssessment != "" {
		fmt.Fprintf(b, "%s\n\n", qoe.QualityAssessment)
	}
}

func writeNWCSummary(b *strings.Builder, nwc *schema.ReportNWCSummary) {
	b.WriteString("## Net Working Capital\n\n")
	fmt.Fprintf(b, "| Current NWC | Recommended Target | Adjustment Impact |\n")
	fmt.Fprintf(b, "|------------:|-------------------:|------------------:|\n")
	fmt.Fprintf(b, "| %s | %s | %s |\n\n",
		formatMoney(nwc.CurrentNWC), formatMoney(nwc.RecommendedTarget), formatMoney(nwc.AdjustmentImpact))
	writeBulletSection(b, "### Manipulation Flags", nwc.ManipulationFlags)
}

func writeRedFlags(b *strings.Builder, flags *schema.RedFlagTiers) {
	if len(flags.Critical) == 0 && len(flags.High) == 0 && len(flags.Medium) == 0 {
		return
	}
	b.WriteString("## Red Flags\n\n")
	writeBulletSection(b, "### Critical", flags.Critical)
	writeBulletSection(b, "### High", flags.High)
	writeBulletSection(b, "### Medium", flags.Medium)
}

func writeFindings(b *strings.Builder, findings *models.AggregatedFindings) {
	if findings == nil {
		return
	}
	b.WriteString("## Aggregated Risk Findings\n\n")
	fmt.Fprintf(b, "%d red flags identified: %d critical, %d high priority.\n\n",
		findings.TotalRedFlags, findings.CriticalIssues, findings.HighPriorityIssues)
	if findings.Partial {
		fmt.Fprintf(b, "> Aggregation was partial; missing stage outputs: %s.\n\n",
			strings.Join(stageNames(findings.MissingStages), ", "))
	}

	all := findings.AllFindings()
	if len(all) == 0 {
		return
	}
	b.WriteString("| Severity | Risk | Affected Areas | Recommended Action |\n")
	b.WriteString("|----------|------|----------------|--------------------|\n")
	for _, f := range all {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			f.Severity, f.RiskType, strings.Join(f.AffectedAreas, ", "), f.RecommendedAction)
	}
	b.WriteString("\n")
}

func writeInterviewPrep(b *strings.Builder, prep *schema.InterviewPrepResult) {
	if prep == nil {
		return
	}
	b.WriteString("## Management Interview Guide\n\n")
	fmt.Fprintf(b, "%d questions across %d topics.",
		prep.InterviewPrepSummary.TotalQuestionsGenerated, len(prep.QuestionSets))
	if prep.InterviewDurationEstimate != "" {
		fmt.Fprintf(b, " Estimated duration: %s.", prep.InterviewDurationEstimate)
	}
	b.WriteString("\n\n")

	for _, set := range prep.QuestionSets {
		fmt.Fprintf(b, "### %s (%s)\n\n", set.Category, set.Severity)
		if set.RelatedAnomaly != "" {
			fmt.Fprintf(b, "Related anomaly: %s\n\n", set.RelatedAnomaly)
		}
		for i, q := range set.Questions {
			fmt.Fprintf(b, "%d. %s\n", i+1, q.Question)
			if q.Rationale != "" {
				fmt.Fprintf(b, "   - Rationale: %s\n", q.Rationale)
			}
			for _, req := range q.DataRequests {
				fmt.Fprintf(b, "   - Request: %s\n", req)
			}
			if note, ok := set.ResponseNotes[i]; ok {
				fmt.Fprintf(b, "   - Note: %s\n", note)
			}
		}
		b.WriteString("\n")
	}

	if len(prep.ValidationChecklist) > 0 {
		b.WriteString("### Validation Checklist\n\n")
		for _, item := range prep.ValidationChecklist {
			fmt.Fprintf(b, "- [ ] %s (%s)\n", item.ClaimToVerify, item.AcceptanceCriteria)
		}
		b.WriteString("\n")
	}
}

func writeSPAPoints(b *strings.Builder, points []schema.SPANegotiationPoint) {
	if len(points) == 0 {
		return
	}
	b.WriteString("## SPA Negotiation Points\n\n")
	b.WriteString("| Priority | Topic | Recommendation | Financial Impact |\n")
	b.WriteString("|----------|-------|----------------|-----------------:|\n")
	for _, p := range points {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			p.Priority, p.Topic, p.Recommendation, formatMoney(p.FinancialImpact))
	}
	b.WriteString("\n")
}

func writePriceAdjustments(b *strings.Builder, adj *schema.PriceAdjustments) {
	b.WriteString("## Recommended Price Adjustments\n\n")
	fmt.Fprintf(b, "- Valuation discount: %s\n", formatMoney(adj.RecommendedValuationDiscount))
	fmt.Fprintf(b, "- NWC peg adjustment: %s\n", formatMoney(adj.NWCPegAdjustment))
	fmt.Fprintf(b, "- **Total impact: %s**\n\n", formatMoney(adj.TotalImpact))
	if adj.Rationale != "" {
		fmt.Fprintf(b, "%s\n\n", adj.Rationale)
	}
}

func writeNextSteps(b *strings.Builder, steps []string) {
	if len(steps) == 0 {
		return
	}
	b.WriteString("## Next Steps\n\n")
	for i, step := range steps {
		fmt.Fprintf(b, "%d. %s\n", i+1, step)
	}
	b.WriteString("\n")
}

func writeBulletSection(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func stageNames(stages []models.Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return names
}
