package agent

import (
	"context"
	"encoding/json"
	"sync"
)

// MockDriver implements the Driver interface with canned per-stage
// responses. It records invocations for assertion and powers offline runs.
type MockDriver struct {
	mu        sync.Mutex
	fixtures  map[string]json.RawMessage
	errors    map[string]error
	delay     func(ctx context.Context) error
	Requests  []Request
	healthErr error
}

// NewMockDriver creates a mock driver preloaded with realistic fixtures for
// every known stage.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		fixtures: map[string]json.RawMessage{
			"fdd_coordinator":   json.RawMessage(coordinatorFixture),
			"interview_prep":    json.RawMessage(interviewPrepFixture),
			"report_generation": json.RawMessage(reportFixture),
		},
		errors: make(map[string]error),
	}
}

// SetFixture overrides the canned response for a stage.
func (m *MockDriver) SetFixture(stageID string, result json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixtures[stageID] = result
}

// SetError makes invocations of a stage fail.
func (m *MockDriver) SetError(stageID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[stageID] = err
}

// SetHealthError makes HealthCheck fail.
func (m *MockDriver) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthErr = err
}

// SetDelay installs a hook run before each invocation, typically to block
// until a test releases it or the context expires.
func (m *MockDriver) SetDelay(delay func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// Invoke implements Driver interface.
func (m *MockDriver) Invoke(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	delay := m.delay
	stageErr := m.errors[req.StageID]
	fixture, ok := m.fixtures[req.StageID]
	m.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stageErr != nil {
		return nil, stageErr
	}
	if !ok {
		return &Response{Success: true, Status: "error"}, nil
	}

	return &Response{
		Success:    true,
		Status:     "success",
		Result:     fixture,
		Model:      "mock",
		TokensUsed: len(req.PromptText) / 4,
	}, nil
}

// HealthCheck implements Driver interface.
func (m *MockDriver) HealthCheck(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

// Configure implements Driver interface.
func (m *MockDriver) Configure(_ map[string]any) error { return nil }

// InvocationCount returns how many times a stage was invoked.
func (m *MockDriver) InvocationCount(stageID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, req := range m.Requests {
		if req.StageID == stageID {
			count++
		}
	}
	return count
}

var _ Driver = (*MockDriver)(nil)

func init() {
	DefaultRegistry.Register("mock", func() Driver {
		return NewMockDriver()
	})
}

// Fixtures modeled on a mid-market industrial acquisition.
const coordinatorFixture = `{
  "workflow_status": "completed",
  "sub_agent_results": {
    "data_extraction": "Extracted 14 documents: audited financials FY2023-FY2025, trial balances, AR/AP aging schedules, and the management P&L package.",
    "reconciliation": {
      "reconciliation_status": "completed",
      "total_accounts_compared": 38,
      "discrepancies": [
        {
          "account_code": "4000",
          "account_name": "Revenue",
          "trial_balance": 100000,
          "audited_statement": 145000,
          "explanation": "Year-end revenue entries posted to the audit file but absent from the trial balance"
        },
        {
          "account_code": "1200",
          "account_name": "Accounts Receivable",
          "trial_balance": 500000,
          "audited_statement": 530000,
          "explanation": "Unreconciled intercompany receivable"
        }
      ],
      "recommendations": ["Request the year-end closing entries workbook"]
    },
    "qoe_analysis": {
      "reported_ebitda": 5000000,
      "addback_categories": [
        {
          "category": "Personal expenses",
          "description": "Owner vehicle and travel run through operating expenses",
          "amount": 200000,
          "defensibility": "high"
        },
        {
          "category": "One-time legal fees",
          "description": "Settled distributor dispute",
          "amount": 50000,
          "defensibility": "medium"
        },
        {
          "category": "Owner compensation adjustment",
          "description": "Above-market owner salary normalization",
          "amount": 14000,
          "defensibility": "low"
        }
      ],
      "ebitda_bridge": {
        "reported_ebitda": 5000000,
        "personal_expenses": 200000,
        "one_time_fees": 50000,
        "litigation_costs": 0,
        "owner_compensation_adj": 14000,
        "other_adjustments": 0
      },
      "quality_assessment": {
        "revenue_quality_score": 6.5,
        "expense_quality_score": 7.0,
        "overall_earnings_quality": "moderate",
        "red_flags": ["Aggressive revenue recognition near period end"]
      },
      "recommendations": ["Test December revenue cutoff against shipping logs"]
    },
    "nwc_analysis": {
      "nwc_calculation": {
        "current_assets": 2500000,
        "current_liabilities": 1200000,
        "cash_excluded": 400000,
        "debt_excluded": 300000,
        "nwc_as_percent_revenue": 0.12
      },
      "trend_analysis": {
        "periods": ["2025-Q1", "2025-Q2", "2025-Q3", "2025-Q4"],
        "nwc_values": [1350000, 1300000, 1250000, 1200000]
      },
      "anomalies_detected": [
        {
          "type": "Receivables spike",
          "description": "AR grew 40% quarter over quarter against flat revenue",
          "impact_amount": 150000,
          "severity": "high",
          "evidence": "AR aging schedule 2025-Q4"
        }
      ],
      "cash_conversion_cycle": {
        "days_sales_outstanding": 45,
        "days_inventory_outstanding": 60,
        "days_payables_outstanding": 30
      },
      "recommended_nwc_target": {
        "proposed_target": 1275000,
        "adjustment_rationale": "Trailing four quarter average"
      },
      "red_flags": ["Quarter-end payables stretching"],
      "recommendations": ["Set the peg off a trailing twelve month average"]
    }
  },
  "aggregated_findings": {
    "cross_functional_risks": [
      {
        "risk_type": "Revenue recognition",
        "description": "Cutoff risk spanning the close process and reported earnings",
        "severity": "critical",
        "recommended_action": "Extend revenue cutoff testing to sixty days either side of close",
        "affected_areas": ["Finance", "Earnings Quality"]
      }
    ]
  },
  "executive_summary": {
    "overall_risk_rating": "high",
    "key_findings": ["Revenue cutoff exposure", "Working capital trending down ahead of close"],
    "deal_breakers": [],
    "negotiation_points": ["NWC peg off trailing twelve months", "Escrow for revenue restatement risk"]
  },
  "next_steps": ["Schedule the management interview", "Request the closing entries workbook"]
}`

const interviewPrepFixture = `{
  "interview_prep_summary": {
    "focus_areas": ["Revenue Recognition", "Working Capital"],
    "priority_topics": ["Q4 revenue cutoff", "Receivables aging shift"]
  },
  "question_sets": [
    {
      "category": "Revenue Recognition",
      "related_anomaly": "Revenue recognition",
      "severity": "critical",
      "questions": [
        {
          "question": "Walk us through the December revenue close and any entries posted after the trial balance was struck.",
          "rationale": "A 45% variance between trial balance and audited revenue suggests late entries",
          "validation_framework": "Trace entries to shipping documents and customer acceptance",
          "data_requests": ["Year-end closing entries workbook", "December shipping log"],
          "follow_up_questions": ["Which customers took delivery after period end?"]
        },
        {
          "question": "Which contracts carry acceptance or right-of-return clauses?",
          "rationale": "Acceptance clauses defer recognition under the stated policy",
          "validation_framework": "Sample contracts against the revenue recognition memo",
          "data_requests": ["Top twenty customer contracts"],
          "follow_up_questions": []
        }
      ]
    },
    {
      "category": "Working Capital",
      "related_anomaly": "Receivables spike",
      "severity": "high",
      "questions": [
        {
          "question": "Explain the Q4 shift in receivables aging and any changes to customer terms.",
          "rationale": "AR grew 40% against flat revenue",
          "validation_framework": "Compare DSO by customer cohort across quarters",
          "data_requests": ["Customer-level AR aging, trailing four quarters"],
          "follow_up_questions": ["Were any collection incentives offered before close?"]
        }
      ]
    }
  ],
  "validation_checklist": [
    {
      "claim_to_verify": "No customer concentration above 10% of revenue",
      "required_documentation": ["Revenue by customer, trailing twelve months"],
      "acceptance_criteria": "Top customer below 10% in each of the last four quarters"
    }
  ],
  "recommended_attendees": ["CFO", "Controller", "VP Sales"],
  "interview_duration_estimate": "2.5 hours"
}`

const reportFixture = `{
  "report_metadata": {
    "report_id": "FDD-2026-0831-001",
    "company_name": "Acme Industrial Holdings",
    "report_date": "2026-08-31",
    "report_type": "full_scope"
  },
  "executive_summary": {
    "overall_risk_rating": "high",
    "investment_recommendation": "proceed_with_conditions",
    "key_highlights": ["Normalized EBITDA of $5.26M on defensible addbacks"],
    "critical_issues": ["Revenue cutoff exposure at year end"],
    "value_drivers": ["Sticky customer base", "Improving gross margin"]
  },
  "ebitda_bridge": {
    "reported_ebitda": 5000000,
    "adjustments": [
      {"category": "Personal expenses", "amount": 200000, "defensibility": "high"},
      {"category": "One-time legal fees", "amount": 50000, "defensibility": "medium"},
      {"category": "Owner compensation adjustment", "amount": 14000, "defensibility": "low"}
    ]
  },
  "qoe_summary": {
    "addback_categories": [
      {"category": "Personal expenses", "amount": 200000, "defensibility": "high"},
      {"category": "One-time legal fees", "amount": 50000, "defensibility": "medium"},
      {"category": "Owner compensation adjustment", "amount": 14000, "defensibility": "low"}
    ],
    "quality_assessment": "moderate"
  },
  "nwc_summary": {
    "current_nwc": 1200000,
    "recommended_target": 1275000,
    "manipulation_flags": ["Quarter-end payables stretching"]
  },
  "red_flags": {
    "critical": ["Revenue cutoff exposure"],
    "high": ["Receivables spike against flat revenue"],
    "medium": ["Owner compensation addback weakly supported"]
  },
  "spa_negotiation_points": [
    {
      "topic": "NWC peg",
      "recommendation": "Set the peg at the trailing twelve month average of $1.275M",
      "financial_impact": -75000,
      "priority": "high"
    },
    {
      "topic": "Revenue restatement escrow",
      "recommendation": "Hold 5% of consideration for eighteen months",
      "financial_impact": 0,
      "priority": "critical"
    }
  ],
  "price_adjustments": {
    "recommended_valuation_discount": -640000,
    "nwc_peg_adjustment": -75000,
    "rationale": "Weakly supported addbacks removed from the bridge at the deal multiple plus the peg shortfall"
  },
  "next_steps": ["Circulate draft SPA language for the peg", "Confirm escrow terms"]
}`
