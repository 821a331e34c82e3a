package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/dealscope/internal/finance"
	"github.com/harborview/dealscope/internal/models"
)

func TestReconciliationRecomputesDerivedFields(t *testing.T) {
	raw := []byte(`{
		"reconciliation_status": "completed",
		"total_accounts_compared": 42,
		"discrepancies_found": 99,
		"discrepancies": [
			{
				"account_code": "4000",
				"account_name": "Revenue",
				"trial_balance": 100000,
				"audited_statement": 145000,
				"variance": 1,
				"variance_percentage": 0.001,
				"severity": "low",
				"explanation": "timing difference"
			}
		],
		"summary": {
			"critical_issues": 0,
			"high_issues": 7,
			"medium_issues": 0,
			"low_issues": 0,
			"total_variance_amount": 12
		}
	}`)

	result, err := DefaultValidator().Reconciliation(raw)
	require.NoError(t, err)

	require.Len(t, result.Discrepancies, 1)
	d := result.Discrepancies[0]
	assert.InDelta(t, 45000, d.Variance, 1e-9)
	require.NotNil(t, d.VariancePercentage)
	assert.InDelta(t, 0.45, *d.VariancePercentage, 1e-9)
	assert.Equal(t, models.SeverityCritical, d.Severity)

	assert.Equal(t, 1, result.DiscrepanciesFound)
	assert.Equal(t, 1, result.Summary.CriticalIssues)
	assert.Equal(t, 0, result.Summary.HighIssues)
	assert.InDelta(t, 45000, result.Summary.TotalVarianceAmount, 1e-9)
	assert.NotNil(t, result.Recommendations)
}

func TestReconciliationZeroTrialBalance(t *testing.T) {
	raw := []byte(`{
		"reconciliation_status": "completed",
		"discrepancies": [
			{
				"account_code": "2100",
				"account_name": "Accrued Liabilities",
				"trial_balance": 0,
				"audited_statement": 50000
			}
		]
	}`)

	result, err := DefaultValidator().Reconciliation(raw)
	require.NoError(t, err)

	d := result.Discrepancies[0]
	assert.Nil(t, d.VariancePercentage)
	assert.Equal(t, models.SeverityCritical, d.Severity)
}

func TestReconciliationMissingStatus(t *testing.T) {
	_, err := DefaultValidator().Reconciliation([]byte(`{"discrepancies": []}`))
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "reconciliation_status", schemaErr.Field)
	assert.Equal(t, models.StageReconciliation, schemaErr.Stage)
}

func TestReconciliationRejectsNonObject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty body", raw: ""},
		{name: "array", raw: "[]"},
		{name: "string", raw: `"oops"`},
		{name: "truncated", raw: `{"reconciliation_status":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultValidator().Reconciliation([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestQoERecomputesNormalizedEBITDA(t *testing.T) {
	raw := []byte(`{
		"reported_ebitda": 5000000,
		"total_addbacks": 1,
		"normalized_ebitda": 2,
		"addback_categories": [
			{"category": "Personal expenses", "amount": 200000, "defensibility": "high"},
			{"category": "One-time legal fees", "amount": 50000, "defensibility": "medium"},
			{"category": "Owner travel", "amount": 14000, "defensibility": "speculative"}
		],
		"ebitda_bridge": {
			"reported_ebitda": 0,
			"personal_expenses": 200000,
			"one_time_fees": 50000,
			"litigation_costs": 0,
			"owner_compensation_adj": 14000,
			"other_adjustments": 0,
			"normalized_ebitda": 0
		},
		"quality_assessment": {
			"revenue_quality_score": 7.5,
			"expense_quality_score": 6.0,
			"overall_earnings_quality": "moderate"
		}
	}`)

	result, err := DefaultValidator().QoE(raw)
	require.NoError(t, err)

	assert.InDelta(t, 264000, result.TotalAddbacks, 1e-9)
	assert.InDelta(t, 5264000, result.NormalizedEBITDA, 1e-9)
	assert.InDelta(t, 5000000, result.EBITDABridge.ReportedEBITDA, 1e-9)
	assert.InDelta(t, 5264000, result.EBITDABridge.NormalizedEBITDA, 1e-9)

	// Unrecognized defensibility falls back to unknown.
	assert.Equal(t, models.DefensibilityUnknown, result.AddbackCategories[2].Defensibility)
	assert.NotNil(t, result.QualityAssessment.RedFlags)
}

func TestQoEEmptyAddbacks(t *testing.T) {
	raw := []byte(`{
		"reported_ebitda": 3000000,
		"ebitda_bridge": {"reported_ebitda": 3000000},
		"quality_assessment": {"overall_earnings_quality": "high"}
	}`)

	result, err := DefaultValidator().QoE(raw)
	require.NoError(t, err)

	assert.Zero(t, result.TotalAddbacks)
	assert.InDelta(t, 3000000, result.NormalizedEBITDA, 1e-9)
	assert.NotNil(t, result.AddbackCategories)
	assert.Empty(t, result.AddbackCategories)
}

func TestQoEMissingBridge(t *testing.T) {
	raw := []byte(`{
		"reported_ebitda": 3000000,
		"quality_assessment": {"overall_earnings_quality": "high"}
	}`)

	_, err := DefaultValidator().QoE(raw)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "ebitda_bridge", schemaErr.Field)
}

func TestNWCRecomputesDerivedFields(t *testing.T) {
	raw := []byte(`{
		"nwc_calculation": {
			"current_assets": 2500000,
			"current_liabilities": 1200000,
			"cash_excluded": 400000,
			"debt_excluded": 300000,
			"net_working_capital": -1
		},
		"trend_analysis": {
			"periods": ["2023-Q1", "2023-Q2", "2023-Q3"],
			"nwc_values": [null, 1200000, 900000],
			"trend_direction": "increasing"
		},
		"cash_conversion_cycle": {
			"days_sales_outstanding": 45,
			"days_inventory_outstanding": 60,
			"days_payables_outstanding": null
		},
		"recommended_nwc_target": {
			"proposed_target": 1100000,
			"adjustment_rationale": "twelve month average"
		},
		"anomalies_detected": [
			{"type": "receivables spike", "severity": "severe-ish"}
		]
	}`)

	result, err := DefaultValidator().NWC(raw)
	require.NoError(t, err)

	// (2,500,000 - 400,000) - (1,200,000 - 300,000)
	assert.InDelta(t, 1200000, result.NWCCalculation.NetWorkingCapital, 1e-9)
	assert.Nil(t, result.CashConversionCycle.CashConversionDays)
	assert.Equal(t, finance.TrendDecreasing, result.TrendAnalysis.TrendDirection)
	assert.Equal(t, models.SeverityMedium, result.AnomaliesDetected[0].Severity)
	assert.NotNil(t, result.RedFlags)
	assert.NotNil(t, result.RecommendedNWCTarget.NormalizationAdjustments)
}

func TestNWCMissingCalculation(t *testing.T) {
	raw := []byte(`{
		"trend_analysis": {},
		"cash_conversion_cycle": {},
		"recommended_nwc_target": {}
	}`)

	_, err := DefaultValidator().NWC(raw)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "nwc_calculation", schemaErr.Field)
}

func TestInterviewPrepRecountsQuestions(t *testing.T) {
	raw := []byte(`{
		"interview_prep_summary": {
			"total_questions_generated": 500,
			"focus_areas": ["Earnings Quality"]
		},
		"question_sets": [
			{
				"category": "Revenue Recognition",
				"severity": "high",
				"questions": [
					{"question": "Walk us through the Q4 revenue spike."},
					{"question": "Which contracts carry acceptance clauses?"}
				]
			},
			{
				"category": "Working Capital",
				"severity": "not-a-severity",
				"questions": [
					{"question": "Explain the receivables aging shift."}
				]
			}
		],
		"validation_checklist": [
			{"claim_to_verify": "No customer concentration above 10%"}
		],
		"interview_duration_estimate": "2 hours"
	}`)

	result, err := DefaultValidator().InterviewPrep(raw)
	require.NoError(t, err)

	assert.Equal(t, 3, result.InterviewPrepSummary.TotalQuestionsGenerated)
	assert.Equal(t, models.SeverityMedium, result.QuestionSets[1].Severity)
	assert.NotNil(t, result.QuestionSets[0].Questions[0].DataRequests)
	assert.NotNil(t, result.ValidationChecklist[0].RequiredDocumentation)
}

func TestInterviewPrepEmptyQuestionMissing(t *testing.T) {
	raw := []byte(`{
		"interview_prep_summary": {},
		"question_sets": [
			{"category": "Revenue", "questions": [{"rationale": "no question text"}]}
		],
		"interview_duration_estimate": "1 hour"
	}`)

	_, err := DefaultValidator().InterviewPrep(raw)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Field, "question")
}

func TestReportRecomputesPriceImpacts(t *testing.T) {
	raw := []byte(`{
		"report_metadata": {
			"report_id": "FDD-2026-001",
			"company_name": "Acme Industrial",
			"report_date": "2026-08-31",
			"report_type": "full_scope"
		},
		"executive_summary": {
			"overall_risk_rating": "high",
			"investment_recommendation": "proceed_with_conditions"
		},
		"ebitda_bridge": {
			"reported_ebitda": 5000000,
			"adjustments": [
				{"category": "Personal expenses", "amount": 200000, "defensibility": "high"},
				{"category": "Litigation", "amount": -50000, "defensibility": "low"}
			],
			"normalized_ebitda": 0,
			"ebitda_multiple_impact": 0
		},
		"qoe_summary": {
			"total_addbacks": 0,
			"addback_categories": [
				{"category": "Personal expenses", "amount": 200000, "defensibility": "high"}
			],
			"quality_assessment": "moderate"
		},
		"nwc_summary": {
			"current_nwc": 900000,
			"recommended_target": 1100000,
			"adjustment_impact": 0
		},
		"price_adjustments": {
			"recommended_valuation_discount": -1500000,
			"nwc_peg_adjustment": -200000,
			"total_impact": 0,
			"rationale": "addback defensibility and working capital shortfall"
		}
	}`)

	result, err := DefaultValidator().Report(raw)
	require.NoError(t, err)

	assert.InDelta(t, 5150000, result.EBITDABridge.NormalizedEBITDA, 1e-9)
	assert.InDelta(t, 1500000, result.EBITDABridge.EBITDAMultipleImpact, 1e-9)
	assert.InDelta(t, 200000, result.QoESummary.TotalAddbacks, 1e-9)
	assert.InDelta(t, 200000, result.NWCSummary.AdjustmentImpact, 1e-9)
	assert.InDelta(t, -1700000, result.PriceAdjustments.TotalImpact, 1e-9)
	assert.NotNil(t, result.RedFlags.Critical)
	assert.NotNil(t, result.SPANegotiationPoints)
}

func TestReportCustomMultiple(t *testing.T) {
	v := NewValidator(finance.DefaultThresholds, 8)
	raw := []byte(`{
		"report_metadata": {"report_id": "R1", "company_name": "Acme"},
		"executive_summary": {},
		"ebitda_bridge": {
			"reported_ebitda": 1000000,
			"adjustments": [{"category": "One-time fees", "amount": 100000}]
		},
		"qoe_summary": {},
		"nwc_summary": {},
		"price_adjustments": {}
	}`)

	result, err := v.Report(raw)
	require.NoError(t, err)
	assert.InDelta(t, 800000, result.EBITDABridge.EBITDAMultipleImpact, 1e-9)
}

func TestReportMissingMetadata(t *testing.T) {
	raw := []byte(`{
		"report_metadata": {"company_name": "Acme"},
		"executive_summary": {},
		"ebitda_bridge": {},
		"qoe_summary": {},
		"nwc_summary": {},
		"price_adjustments": {}
	}`)

	_, err := DefaultValidator().Report(raw)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "report_metadata.report_id", schemaErr.Field)
}

func TestCoordinatorRecomputesCounts(t *testing.T) {
	raw := []byte(`{
		"workflow_status": "completed",
		"sub_agent_results": {
			"data_extraction": "Extracted 14 documents covering FY2023 through FY2025.",
			"reconciliation": {
				"reconciliation_status": "completed",
				"discrepancies": []
			},
			"qoe_analysis": "QoE analysis unavailable for this run."
		},
		"aggregated_findings": {
			"total_red_flags": 77,
			"critical_issues": 77,
			"high_priority_issues": 77,
			"cross_functional_risks": [
				{
					"risk_type": "Revenue Recognition",
					"severity": "critical",
					"affected_areas": ["Finance", "Accounting"]
				},
				{
					"risk_type": "Customer Concentration",
					"severity": "high",
					"affected_areas": ["Operations"]
				},
				{
					"risk_type": "Inventory Valuation",
					"severity": "weird",
					"affected_areas": ["Accounting"]
				}
			]
		},
		"executive_summary": {
			"overall_risk_rating": "high",
			"key_findings": ["Aggressive revenue recognition"]
		}
	}`)

	result, err := DefaultValidator().Coordinator(raw)
	require.NoError(t, err)

	assert.Equal(t, 3, result.AggregatedFindings.TotalRedFlags)
	assert.Equal(t, 1, result.AggregatedFindings.CriticalIssues)
	assert.Equal(t, 1, result.AggregatedFindings.HighPriorityIssues)
	assert.Equal(t, models.SeverityMedium, result.AggregatedFindings.CrossFunctionalRisks[2].Severity)

	require.NotNil(t, result.SubAgentResults.Reconciliation)
	assert.Nil(t, result.SubAgentResults.QoE)
	assert.Equal(t, "QoE analysis unavailable for this run.", result.SubAgentResults.QoESummary)
	assert.Nil(t, result.SubAgentResults.NWC)
}

func TestCoordinatorPropagatesSubAgentSchemaError(t *testing.T) {
	raw := []byte(`{
		"workflow_status": "completed",
		"sub_agent_results": {
			"reconciliation": {"discrepancies": []}
		},
		"aggregated_findings": {"cross_functional_risks": []},
		"executive_summary": {}
	}`)

	_, err := DefaultValidator().Coordinator(raw)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, models.StageReconciliation, schemaErr.Stage)
	assert.Equal(t, "reconciliation_status", schemaErr.Field)
}

func TestValidateDispatch(t *testing.T) {
	raw := []byte(`{"reconciliation_status": "completed"}`)

	out, err := DefaultValidator().Validate(models.StageReconciliation, raw)
	require.NoError(t, err)
	_, ok := out.(*ReconciliationResult)
	assert.True(t, ok)

	_, err = DefaultValidator().Validate(models.StageDataExtraction, raw)
	assert.Error(t, err)
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "success with result",
			raw:  `{"success": true, "status": "success", "result": {"reconciliation_status": "completed"}}`,
		},
		{
			name: "error without result",
			raw:  `{"success": false, "status": "error"}`,
		},
		{
			name:    "success missing result",
			raw:     `{"success": true, "status": "success"}`,
			wantErr: true,
		},
		{
			name:    "unknown status",
			raw:     `{"success": true, "status": "partial"}`,
			wantErr: true,
		},
		{
			name:    "missing status",
			raw:     `{"success": true}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope(models.StageCoordinator, []byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, env.Status == "success", len(env.Result) > 0)
		})
	}
}

func TestCheckEnvelope(t *testing.T) {
	payload := json.RawMessage(`{"reconciliation_status": "completed"}`)

	err := CheckEnvelope(models.StageReconciliation, &Envelope{Success: true, Status: "success", Result: payload})
	assert.NoError(t, err)

	err = CheckEnvelope(models.StageReconciliation, &Envelope{Success: false, Status: "success", Result: payload})
	var envErr *EnvelopeError
	require.ErrorAs(t, err, &envErr)
	assert.True(t, envErr.Transport)

	err = CheckEnvelope(models.StageReconciliation, &Envelope{Success: true, Status: "error"})
	envErr = nil
	require.ErrorAs(t, err, &envErr)
	assert.False(t, envErr.Transport)

	var schemaErr *SchemaError
	err = CheckEnvelope(models.StageReconciliation, &Envelope{Success: true, Status: "partial"})
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "status", schemaErr.Field)

	schemaErr = nil
	err = CheckEnvelope(models.StageReconciliation, &Envelope{Success: true, Status: "success"})
	require.ErrorAs(t, err, &schemaErr)
}
