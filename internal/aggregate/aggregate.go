// Package aggregate unifies validated stage outputs into one deduplicated
// cross-functional findings model. It is pure: it reads already-validated
// results, never invokes a stage, and never blocks on a missing input.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
	"github.com/harborview/dealscope/pkg/logger"
)

// Engine aggregates stage outputs into risk findings.
type Engine struct {
	log logger.Logger
}

// NewEngine creates an aggregation engine.
func NewEngine(log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{log: log.WithGroup("aggregate")}
}

// Aggregate collects discrepancies, red flags and anomalies from the three
// analytical stages, classifies each into a risk finding, deduplicates by
// risk type and affected areas, and rolls up severity counts. A nil input
// marks the result partial and records the missing stage; aggregation
// always proceeds with whatever is available.
func (e *Engine) Aggregate(recon *schema.ReconciliationResult, qoe *schema.QoEResult, nwc *schema.NWCResult) *models.AggregatedFindings {
	var collected []models.RiskFinding
	var missing []models.Stage

	if recon != nil {
		collected = append(collected, classifyReconciliation(recon)...)
	} else {
		missing = append(missing, models.StageReconciliation)
	}
	if qoe != nil {
		collected = append(collected, classifyQoE(qoe)...)
	} else {
		missing = append(missing, models.StageQoE)
	}
	if nwc != nil {
		collected = append(collected, classifyNWC(nwc)...)
	} else {
		missing = append(missing, models.StageNWC)
	}

	deduped := dedupe(collected)

	findings := &models.AggregatedFindings{
		CrossFunctionalRisks: []models.RiskFinding{},
		SingleFunctionRisks:  []models.RiskFinding{},
		Partial:              len(missing) > 0,
		MissingStages:        missing,
	}
	for _, f := range deduped {
		findings.TotalRedFlags++
		switch f.Severity {
		case models.SeverityCritical:
			findings.CriticalIssues++
		case models.SeverityHigh:
			findings.HighPriorityIssues++
		}
		if f.CrossFunctional() {
			findings.CrossFunctionalRisks = append(findings.CrossFunctionalRisks, f)
		} else {
			findings.SingleFunctionRisks = append(findings.SingleFunctionRisks, f)
		}
	}

	e.log.Info("aggregated stage findings",
		"total", findings.TotalRedFlags,
		"critical", findings.CriticalIssues,
		"high", findings.HighPriorityIssues,
		"cross_functional", len(findings.CrossFunctionalRisks),
		"partial", findings.Partial,
	)

	return findings
}

// classifyReconciliation turns each discrepancy into a finding. Reconciliation
// issues touch both the finance and accounting functions unless the
// explanation attributes them more narrowly.
func classifyReconciliation(recon *schema.ReconciliationResult) []models.RiskFinding {
	findings := make([]models.RiskFinding, 0, len(recon.Discrepancies))
	for _, d := range recon.Discrepancies {
		name := d.AccountName
		if name == "" {
			name = d.AccountCode
		}
		desc := d.Explanation
		if desc == "" {
			desc = fmt.Sprintf("Variance of %.0f between trial balance and audited statement for %s", d.Variance, name)
		}
		f := models.NewRiskFinding(
			"Reconciliation variance: "+name,
			desc,
			d.Severity,
			[]string{models.AreaFinance, models.AreaAccounting},
			models.StageReconciliation,
		)
		f.RecommendedAction = fmt.Sprintf("Obtain supporting documentation for %s and reconcile the %.0f variance", name, d.Variance)
		findings = append(findings, *f)
	}
	return findings
}

// classifyQoE turns quality-assessment red flags into findings. Flags arrive
// as prose with no severity of their own, so they normalize to the default.
func classifyQoE(qoe *schema.QoEResult) []models.RiskFinding {
	findings := make([]models.RiskFinding, 0, len(qoe.QualityAssessment.RedFlags))
	for _, flag := range qoe.QualityAssessment.RedFlags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		f := models.NewRiskFinding(
			flag,
			flag,
			"",
			[]string{models.AreaEarnings},
			models.StageQoE,
		)
		f.RecommendedAction = "Validate with management and corroborating documentation"
		findings = append(findings, *f)
	}
	return findings
}

// classifyNWC turns detected anomalies into findings. Working-capital
// anomalies touch both the working-capital and operations functions.
func classifyNWC(nwc *schema.NWCResult) []models.RiskFinding {
	findings := make([]models.RiskFinding, 0, len(nwc.AnomaliesDetected))
	for _, a := range nwc.AnomaliesDetected {
		desc := a.Description
		if desc == "" {
			desc = a.Type
		}
		f := models.NewRiskFinding(
			a.Type,
			desc,
			a.Severity,
			[]string{models.AreaWorkingCapital, models.AreaOperations},
			models.StageNWC,
		)
		if a.Evidence != "" {
			f.RecommendedAction = "Review evidence: " + a.Evidence
		} else {
			f.RecommendedAction = "Quantify the anomaly against trailing twelve month balances"
		}
		findings = append(findings, *f)
	}
	return findings
}

// dedupe collapses findings sharing a dedupe key, keeping the higher
// severity and concatenating distinct recommended actions. First-seen order
// is preserved.
func dedupe(findings []models.RiskFinding) []models.RiskFinding {
	index := make(map[string]int, len(findings))
	out := make([]models.RiskFinding, 0, len(findings))

	for _, f := range findings {
		key := f.DedupeKey()
		pos, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, f)
			continue
		}

		kept := &out[pos]
		if models.MoreSevere(f.Severity, kept.Severity) {
			kept.Severity = f.Severity
			kept.Description = f.Description
		}
		if f.RecommendedAction != "" && !strings.Contains(kept.RecommendedAction, f.RecommendedAction) {
			if kept.RecommendedAction == "" {
				kept.RecommendedAction = f.RecommendedAction
			} else {
				kept.RecommendedAction += "; " + f.RecommendedAction
			}
		}
	}

	return out
}
