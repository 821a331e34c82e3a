// Package schema validates raw stage outputs against their published
// contracts before anything downstream trusts them. Each analytical stage
// has its own schema; the validator checks required fields, parses numerics,
// normalizes open-vocabulary enums, and recomputes every derived numeric
// field locally so inconsistent upstream arithmetic never leaks through.
package schema

import "encoding/json"

// SubAgentResults carries the embedded sub-agent outputs of the coordinator
// call. Each entry is either a structured result (validated recursively) or
// a plain-text summary; the original capability returns whichever its
// pipeline produced.
type SubAgentResults struct {
	DataExtraction string                `json:"data_extraction"`
	Reconciliation *ReconciliationResult `json:"reconciliation,omitempty"`
	QoE            *QoEResult            `json:"qoe_analysis,omitempty"`
	NWC            *NWCResult            `json:"nwc_analysis,omitempty"`

	// Summaries preserved for stages that returned prose instead of a
	// structured payload.
	ReconciliationSummary string `json:"reconciliation_summary,omitempty"`
	QoESummary            string `json:"qoe_summary,omitempty"`
	NWCSummary            string `json:"nwc_summary,omitempty"`
}

// CrossFunctionalRisk is a risk entry as reported by the coordinator.
type CrossFunctionalRisk struct {
	RiskType          string   `json:"risk_type"`
	Description       string   `json:"description"`
	Severity          string   `json:"severity"`
	RecommendedAction string   `json:"recommended_action"`
	AffectedAreas     []string `json:"affected_areas"`
}

// CoordinatorFindings are the coordinator's own rollups. Counts are
// recomputed locally during validation.
type CoordinatorFindings struct {
	TotalRedFlags        int                   `json:"total_red_flags"`
	CriticalIssues       int                   `json:"critical_issues"`
	HighPriorityIssues   int                   `json:"high_priority_issues"`
	CrossFunctionalRisks []CrossFunctionalRisk `json:"cross_functional_risks"`
}

// ExecutiveSummary is the coordinator's deal-level assessment.
type ExecutiveSummary struct {
	OverallRiskRating string   `json:"overall_risk_rating"`
	KeyFindings       []string `json:"key_findings"`
	DealBreakers      []string `json:"deal_breakers"`
	NegotiationPoints []string `json:"negotiation_points"`
}

// CoordinatorResult is the validated output of the coordinator stage.
type CoordinatorResult struct {
	WorkflowStatus     string              `json:"workflow_status"`
	SubAgentResults    SubAgentResults     `json:"sub_agent_results"`
	AggregatedFindings CoordinatorFindings `json:"aggregated_findings"`
	ExecutiveSummary   ExecutiveSummary    `json:"executive_summary"`
	NextSteps          []string            `json:"next_steps"`
}

// Discrepancy is one compared account from the reconciliation stage.
// Variance, variance_percentage and severity are always derived locally,
// never taken from upstream.
type Discrepancy struct {
	AccountCode        string   `json:"account_code"`
	AccountName        string   `json:"account_name"`
	TrialBalance       float64  `json:"trial_balance"`
	AuditedStatement   float64  `json:"audited_statement"`
	Variance           float64  `json:"variance"`
	VariancePercentage *float64 `json:"variance_percentage"`
	Severity           string   `json:"severity"`
	Explanation        string   `json:"explanation"`
}

// ReconciliationSummary holds per-severity counts, recomputed locally.
type ReconciliationSummary struct {
	CriticalIssues      int     `json:"critical_issues"`
	HighIssues          int     `json:"high_issues"`
	MediumIssues        int     `json:"medium_issues"`
	LowIssues           int     `json:"low_issues"`
	TotalVarianceAmount float64 `json:"total_variance_amount"`
}

// ReconciliationResult is the validated output of the reconciliation stage.
type ReconciliationResult struct {
	ReconciliationStatus  string                `json:"reconciliation_status"`
	TotalAccountsCompared int                   `json:"total_accounts_compared"`
	DiscrepanciesFound    int                   `json:"discrepancies_found"`
	Discrepancies         []Discrepancy         `json:"discrepancies"`
	Summary               ReconciliationSummary `json:"summary"`
	Recommendations       []string              `json:"recommendations"`
}

// AddbackCategory is one EBITDA adjustment proposed by the QoE stage.
type AddbackCategory struct {
	Category           string  `json:"category"`
	Description        string  `json:"description"`
	Amount             float64 `json:"amount"`
	Rationale          string  `json:"rationale"`
	Defensibility      string  `json:"defensibility"`
	SupportingEvidence string  `json:"supporting_evidence"`
}

// EBITDABridgeComponents is the QoE stage's itemized bridge. The normalized
// figure is recomputed from the components.
type EBITDABridgeComponents struct {
	ReportedEBITDA       float64 `json:"reported_ebitda"`
	PersonalExpenses     float64 `json:"personal_expenses"`
	OneTimeFees          float64 `json:"one_time_fees"`
	LitigationCosts      float64 `json:"litigation_costs"`
	OwnerCompensationAdj float64 `json:"owner_compensation_adj"`
	OtherAdjustments     float64 `json:"other_adjustments"`
	NormalizedEBITDA     float64 `json:"normalized_ebitda"`
}

// QualityAssessment scores earnings quality.
type QualityAssessment struct {
	RevenueQualityScore    float64  `json:"revenue_quality_score"`
	ExpenseQualityScore    float64  `json:"expense_quality_score"`
	OverallEarningsQuality string   `json:"overall_earnings_quality"`
	RedFlags               []string `json:"red_flags"`
}

// QoEResult is the validated output of the quality-of-earnings stage.
// TotalAddbacks and NormalizedEBITDA are recomputed from the addback list.
type QoEResult struct {
	ReportedEBITDA    float64                `json:"reported_ebitda"`
	TotalAddbacks     float64                `json:"total_addbacks"`
	NormalizedEBITDA  float64                `json:"normalized_ebitda"`
	AddbackCategories []AddbackCategory      `json:"addback_categories"`
	EBITDABridge      EBITDABridgeComponents `json:"ebitda_bridge"`
	QualityAssessment QualityAssessment      `json:"quality_assessment"`
	Recommendations   []string               `json:"recommendations"`
}

// NWCCalculation is the point-in-time working capital computation.
// NetWorkingCapital is recomputed with cash and debt excluded.
type NWCCalculation struct {
	CurrentAssets       float64 `json:"current_assets"`
	CurrentLiabilities  float64 `json:"current_liabilities"`
	CashExcluded        float64 `json:"cash_excluded"`
	DebtExcluded        float64 `json:"debt_excluded"`
	NetWorkingCapital   float64 `json:"net_working_capital"`
	NWCAsPercentRevenue float64 `json:"nwc_as_percent_revenue"`
}

// TrendAnalysis is the NWC series over named periods. Values may be absent
// for missing periods; the direction is recomputed locally.
type TrendAnalysis struct {
	Periods        []string   `json:"periods"`
	NWCValues      []*float64 `json:"nwc_values"`
	TrendDirection string     `json:"trend_direction"`
}

// Anomaly is one working-capital anomaly.
type Anomaly struct {
	Type         string  `json:"type"`
	Description  string  `json:"description"`
	ImpactAmount float64 `json:"impact_amount"`
	Severity     string  `json:"severity"`
	Evidence     string  `json:"evidence"`
}

// CashConversionCycle breaks out the cash cycle in days. Any component may
// be null; the total propagates null rather than coercing to zero.
type CashConversionCycle struct {
	DaysSalesOutstanding     *float64 `json:"days_sales_outstanding"`
	DaysInventoryOutstanding *float64 `json:"days_inventory_outstanding"`
	DaysPayablesOutstanding  *float64 `json:"days_payables_outstanding"`
	CashConversionDays       *float64 `json:"cash_conversion_days"`
}

// NormalizationAdjustment is one adjustment toward the proposed NWC target.
type NormalizationAdjustment struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// RecommendedNWCTarget is the proposed peg and its rationale.
type RecommendedNWCTarget struct {
	ProposedTarget           float64                   `json:"proposed_target"`
	AdjustmentRationale      string                    `json:"adjustment_rationale"`
	NormalizationAdjustments []NormalizationAdjustment `json:"normalization_adjustments"`
}

// NWCResult is the validated output of the net-working-capital stage.
type NWCResult struct {
	NWCCalculation       NWCCalculation       `json:"nwc_calculation"`
	TrendAnalysis        TrendAnalysis        `json:"trend_analysis"`
	AnomaliesDetected    []Anomaly            `json:"anomalies_detected"`
	CashConversionCycle  CashConversionCycle  `json:"cash_conversion_cycle"`
	RecommendedNWCTarget RecommendedNWCTarget `json:"recommended_nwc_target"`
	RedFlags             []string             `json:"red_flags"`
	Recommendations      []string             `json:"recommendations"`
}

// InterviewQuestion is one generated management question.
type InterviewQuestion struct {
	Question            string   `json:"question"`
	Rationale           string   `json:"rationale"`
	ValidationFramework string   `json:"validation_framework"`
	DataRequests        []string `json:"data_requests"`
	FollowUpQuestions   []string `json:"follow_up_questions"`
}

// QuestionSet groups questions around one finding. ResponseNotes are
// appended by the user after the interview and never alter the generated
// question content.
type QuestionSet struct {
	Category       string              `json:"category"`
	RelatedAnomaly string              `json:"related_anomaly"`
	Severity       string              `json:"severity"`
	Questions      []InterviewQuestion `json:"questions"`
	ResponseNotes  map[int]string      `json:"response_notes,omitempty"`
}

// ValidationChecklistItem is one management claim to verify.
type ValidationChecklistItem struct {
	ClaimToVerify         string   `json:"claim_to_verify"`
	RequiredDocumentation []string `json:"required_documentation"`
	AcceptanceCriteria    string   `json:"acceptance_criteria"`
}

// InterviewPrepSummary is the header of the interview pack. The question
// count is recomputed from the question sets.
type InterviewPrepSummary struct {
	TotalQuestionsGenerated int      `json:"total_questions_generated"`
	FocusAreas              []string `json:"focus_areas"`
	PriorityTopics          []string `json:"priority_topics"`
}

// InterviewPrepResult is the validated output of the interview-prep stage.
type InterviewPrepResult struct {
	InterviewPrepSummary      InterviewPrepSummary      `json:"interview_prep_summary"`
	QuestionSets              []QuestionSet             `json:"question_sets"`
	ValidationChecklist       []ValidationChecklistItem `json:"validation_checklist"`
	RecommendedAttendees      []string                  `json:"recommended_attendees"`
	InterviewDurationEstimate string                    `json:"interview_duration_estimate"`
}

// ReportMetadata identifies a generated report.
type ReportMetadata struct {
	ReportID    string `json:"report_id"`
	CompanyName string `json:"company_name"`
	ReportDate  string `json:"report_date"`
	ReportType  string `json:"report_type"`
}

// ReportExecutiveSummary is the report's deal assessment.
type ReportExecutiveSummary struct {
	OverallRiskRating        string   `json:"overall_risk_rating"`
	InvestmentRecommendation string   `json:"investment_recommendation"`
	KeyHighlights            []string `json:"key_highlights"`
	CriticalIssues           []string `json:"critical_issues"`
	ValueDrivers             []string `json:"value_drivers"`
}

// EBITDAAdjustment is one named adjustment in the report bridge.
type EBITDAAdjustment struct {
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	Defensibility string  `json:"defensibility"`
}

// ReportEBITDABridge is the report's bridge from reported to normalized
// EBITDA. Normalized EBITDA and the multiple impact are recomputed.
type ReportEBITDABridge struct {
	ReportedEBITDA       float64            `json:"reported_ebitda"`
	Adjustments          []EBITDAAdjustment `json:"adjustments"`
	NormalizedEBITDA     float64            `json:"normalized_ebitda"`
	EBITDAMultipleImpact float64            `json:"ebitda_multiple_impact"`
}

// ReportQoESummary condenses the QoE analysis for the report.
type ReportQoESummary struct {
	TotalAddbacks     float64            `json:"total_addbacks"`
	AddbackCategories []EBITDAAdjustment `json:"addback_categories"`
	QualityAssessment string             `json:"quality_assessment"`
}

// ReportNWCSummary condenses the NWC analysis for the report.
// AdjustmentImpact is recomputed as recommended target minus current NWC.
type ReportNWCSummary struct {
	CurrentNWC        float64  `json:"current_nwc"`
	RecommendedTarget float64  `json:"recommended_target"`
	AdjustmentImpact  float64  `json:"adjustment_impact"`
	ManipulationFlags []string `json:"manipulation_flags"`
}

// RedFlagTiers buckets report red flags by severity.
type RedFlagTiers struct {
	Critical []string `json:"critical"`
	High     []string `json:"high"`
	Medium   []string `json:"medium"`
}

// SPANegotiationPoint is one recommended SPA term.
type SPANegotiationPoint struct {
	Topic           string  `json:"topic"`
	Recommendation  string  `json:"recommendation"`
	FinancialImpact float64 `json:"financial_impact"`
	Priority        string  `json:"priority"`
}

// PriceAdjustments is the valuation math. TotalImpact is recomputed as the
// sum of the discount and the peg adjustment.
type PriceAdjustments struct {
	RecommendedValuationDiscount float64 `json:"recommended_valuation_discount"`
	NWCPegAdjustment             float64 `json:"nwc_peg_adjustment"`
	TotalImpact                  float64 `json:"total_impact"`
	Rationale                    string  `json:"rationale"`
}

// ReportResult is the validated output of the report-generation stage. A
// report is an immutable synthesis of all prior validated stage outputs at
// generation time.
type ReportResult struct {
	ReportMetadata       ReportMetadata         `json:"report_metadata"`
	ExecutiveSummary     ReportExecutiveSummary `json:"executive_summary"`
	EBITDABridge         ReportEBITDABridge     `json:"ebitda_bridge"`
	QoESummary           ReportQoESummary       `json:"qoe_summary"`
	NWCSummary           ReportNWCSummary       `json:"nwc_summary"`
	RedFlags             RedFlagTiers           `json:"red_flags"`
	SPANegotiationPoints []SPANegotiationPoint  `json:"spa_negotiation_points"`
	PriceAdjustments     PriceAdjustments       `json:"price_adjustments"`
	NextSteps            []string               `json:"next_steps"`
}

// Envelope is the generic sub-agent response wrapper every stage invocation
// returns: a transport success flag, an analytical status, and the
// stage-specific payload present only on success.
type Envelope struct {
	Success bool            `json:"success"`
	Status  string          `json:"status"`
	Result  json.RawMessage `json:"result,omitempty"`
}
