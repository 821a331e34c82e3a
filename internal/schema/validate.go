package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harborview/dealscope/internal/finance"
	"github.com/harborview/dealscope/internal/models"
)

// DefaultEBITDAMultiple is the deal multiple used to express the valuation
// impact of EBITDA adjustments when the engagement config does not set one.
const DefaultEBITDAMultiple = 10.0

// Validator checks raw stage outputs against their published schemas. It is
// a pure checker: no side effects, no retained state between calls.
type Validator struct {
	thresholds finance.Thresholds
	multiple   float64
}

// NewValidator creates a validator with the given severity thresholds and
// deal multiple.
func NewValidator(thresholds finance.Thresholds, ebitdaMultiple float64) *Validator {
	if !thresholds.Valid() {
		thresholds = finance.DefaultThresholds
	}
	if ebitdaMultiple <= 0 {
		ebitdaMultiple = DefaultEBITDAMultiple
	}
	return &Validator{thresholds: thresholds, multiple: ebitdaMultiple}
}

// DefaultValidator creates a validator with policy defaults.
func DefaultValidator() *Validator {
	return NewValidator(finance.DefaultThresholds, DefaultEBITDAMultiple)
}

// Validate dispatches to the schema for the named stage and returns the
// typed output. Callers that know the stage statically should use the
// typed methods instead.
func (v *Validator) Validate(stage models.Stage, raw json.RawMessage) (any, error) {
	switch stage {
	case models.StageCoordinator:
		return v.Coordinator(raw)
	case models.StageReconciliation:
		return v.Reconciliation(raw)
	case models.StageQoE:
		return v.QoE(raw)
	case models.StageNWC:
		return v.NWC(raw)
	case models.StageInterviewPrep:
		return v.InterviewPrep(raw)
	case models.StageReport:
		return v.Report(raw)
	default:
		return nil, &SchemaError{Stage: stage, Reason: "no schema registered for stage"}
	}
}

// ParseEnvelope validates the generic sub-agent response wrapper.
func ParseEnvelope(stage models.Stage, raw []byte) (*Envelope, error) {
	fields, err := splitFields(stage, raw)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if jsonErr := strictUnmarshal(raw, &env); jsonErr != nil {
		return nil, malformedField(stage, "", jsonErr)
	}

	if _, ok := fields["status"]; !ok {
		return nil, missingField(stage, "status")
	}
	if err := checkEnvelopeStatus(stage, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// EnvelopeError reports a response envelope that is well formed but carries
// no usable result. Transport distinguishes a failed invocation from a
// completed invocation whose analysis did not succeed.
type EnvelopeError struct {
	Stage     models.Stage
	Reason    string
	Transport bool
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Reason)
}

// CheckEnvelope decides whether a decoded response envelope carries a
// usable result. Transport failures, analytical failures and malformed
// status values surface as distinct error types so callers can classify
// them. This is the one place envelope acceptance is defined.
func CheckEnvelope(stage models.Stage, env *Envelope) error {
	if !env.Success {
		return &EnvelopeError{Stage: stage, Transport: true, Reason: "transport reported failure"}
	}
	if err := checkEnvelopeStatus(stage, env); err != nil {
		return err
	}
	if env.Status != "success" {
		return &EnvelopeError{Stage: stage, Reason: fmt.Sprintf("stage reported status %q", env.Status)}
	}
	return nil
}

// checkEnvelopeStatus enforces the status vocabulary and the
// success-implies-result rule shared by ParseEnvelope and CheckEnvelope.
func checkEnvelopeStatus(stage models.Stage, env *Envelope) error {
	switch env.Status {
	case "success":
		if len(env.Result) == 0 || string(env.Result) == "null" {
			return missingField(stage, "result")
		}
	case "error":
		// No payload expected.
	default:
		return &SchemaError{Stage: stage, Field: "status", Reason: fmt.Sprintf("must be success or error, got %q", env.Status)}
	}
	return nil
}

// Coordinator validates the coordinator stage output, recursively
// validating any embedded structured sub-agent results and recomputing the
// aggregated counts from the risk list.
func (v *Validator) Coordinator(raw json.RawMessage) (*CoordinatorResult, error) {
	const stage = models.StageCoordinator

	fields, err := splitFields(stage, raw)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"workflow_status", "sub_agent_results", "aggregated_findings", "executive_summary"} {
		if _, ok := fields[name]; !ok {
			return nil, missingField(stage, name)
		}
	}

	var result CoordinatorResult
	if jsonErr := json.Unmarshal(raw, &coordinatorWire{out: &result, v: v}); jsonErr != nil {
		if schemaErr, ok := jsonErr.(*SchemaError); ok {
			return nil, schemaErr
		}
		return nil, malformedField(stage, "", jsonErr)
	}

	for i := range result.AggregatedFindings.CrossFunctionalRisks {
		risk := &result.AggregatedFindings.CrossFunctionalRisks[i]
		if risk.RiskType == "" {
			return nil, missingField(stage, fmt.Sprintf("aggregated_findings.cross_functional_risks[%d].risk_type", i))
		}
		risk.Severity = models.NormalizeSeverity(risk.Severity)
		risk.AffectedAreas = defaultStrings(risk.AffectedAreas)
	}
	result.ExecutiveSummary.OverallRiskRating = models.NormalizeSeverity(result.ExecutiveSummary.OverallRiskRating)
	result.ExecutiveSummary.KeyFindings = defaultStrings(result.ExecutiveSummary.KeyFindings)
	result.ExecutiveSummary.DealBreakers = defaultStrings(result.ExecutiveSummary.DealBreakers)
	result.ExecutiveSummary.NegotiationPoints = defaultStrings(result.ExecutiveSummary.NegotiationPoints)
	result.NextSteps = defaultStrings(result.NextSteps)

	// Counts are derived, never trusted from upstream.
	total, critical, high := 0, 0, 0
	for _, risk := range result.AggregatedFindings.CrossFunctionalRisks {
		total++
		switch risk.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityHigh:
			high++
		}
	}
	result.AggregatedFindings.TotalRedFlags = total
	result.AggregatedFindings.CriticalIssues = critical
	result.AggregatedFindings.HighPriorityIssues = high

	return &result, nil
}

// coordinatorWire decodes the coordinator payload, handing sub_agent_results
// special treatment: each entry may be a structured sub-result or a prose
// summary string.
type coordinatorWire struct {
	out *CoordinatorResult
	v   *Validator
}

func (w *coordinatorWire) UnmarshalJSON(raw []byte) error {
	var plain struct {
		WorkflowStatus     string                     `json:"workflow_status"`
		SubAgentResults    map[string]json.RawMessage `json:"sub_agent_results"`
		AggregatedFindings CoordinatorFindings        `json:"aggregated_findings"`
		ExecutiveSummary   ExecutiveSummary           `json:"executive_summary"`
		NextSteps          []string                   `json:"next_steps"`
	}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return err
	}

	w.out.WorkflowStatus = plain.WorkflowStatus
	w.out.AggregatedFindings = plain.AggregatedFindings
	w.out.ExecutiveSummary = plain.ExecutiveSummary
	w.out.NextSteps = plain.NextSteps

	sub := &w.out.SubAgentResults
	if rawExtraction, ok := plain.SubAgentResults["data_extraction"]; ok {
		// Extraction output is always prose.
		_ = json.Unmarshal(rawExtraction, &sub.DataExtraction)
	}

	v := w.v
	if rawRecon, ok := plain.SubAgentResults["reconciliation"]; ok {
		if isJSONString(rawRecon) {
			_ = json.Unmarshal(rawRecon, &sub.ReconciliationSummary)
		} else {
			recon, err := v.Reconciliation(rawRecon)
			if err != nil {
				return err
			}
			sub.Reconciliation = recon
		}
	}
	if rawQoE, ok := plain.SubAgentResults["qoe_analysis"]; ok {
		if isJSONString(rawQoE) {
			_ = json.Unmarshal(rawQoE, &sub.QoESummary)
		} else {
			qoe, err := v.QoE(rawQoE)
			if err != nil {
				return err
			}
			sub.QoE = qoe
		}
	}
	if rawNWC, ok := plain.SubAgentResults["nwc_analysis"]; ok {
		if isJSONString(rawNWC) {
			_ = json.Unmarshal(rawNWC, &sub.NWCSummary)
		} else {
			nwc, err := v.NWC(rawNWC)
			if err != nil {
				return err
			}
			sub.NWC = nwc
		}
	}

	return nil
}

// Reconciliation validates the reconciliation stage output. Variance,
// variance percentage, discrepancy severity and all summary counts are
// recomputed locally.
func (v *Validator) Reconciliation(raw json.RawMessage) (*ReconciliationResult, error) {
	const stage = models.StageReconciliation

	fields, err := splitFields(stage, raw)
	if err != nil {
		return nil, err
	}
	if _, ok := fields["reconciliation_status"]; !ok {
		return nil, missingField(stage, "reconciliation_status")
	}

	var result ReconciliationResult
	if jsonErr := strictUnmarshal(raw, &result); jsonErr != nil {
		return nil, malformedField(stage, "", jsonErr)
	}
	result.Discrepancies = defaultSlice(result.Discrepancies)
	result.Recommendations = defaultStrings(result.Recommendations)

	summary := ReconciliationSummary{}
	for i := range result.Discrepancies {
		d := &result.Discrepancies[i]
		if d.AccountCode == "" && d.AccountName == "" {
			return nil, missingField(stage, fmt.Sprintf("discrepancies[%d].account_code", i))
		}

		d.Variance = finance.Variance(d.AuditedStatement, d.TrialBalance)
		d.VariancePercentage = finance.VariancePct(d.AuditedStatement, d.TrialBalance)
		d.Severity = finance.SeverityFromVariancePct(d.VariancePercentage, v.thresholds)

		switch d.Severity {
		case models.SeverityCritical:
			summary.CriticalIssues++
		case models.SeverityHigh:
			summary.HighIssues++
		case models.SeverityMedium:
			summary.MediumIssues++
		case models.SeverityLow:
			summary.LowIssues++
		}
		if d.Variance >= 0 {
			summary.TotalVarianceAmount += d.Variance
		} else {
			summary.TotalVarianceAmount -= d.Variance
		}
	}
	result.Summary = summary
	result.DiscrepanciesFound = len(result.Discrepancies)
	if result.TotalAccountsCompared < result.DiscrepanciesFound {
		result.TotalAccountsCompared = result.DiscrepanciesFound
	}

	return &result, nil
}

// QoE validates the quality-of-earnings stage output. Total addbacks,
// normalized EBITDA and the bridge's normalized figure are recomputed.
func (v *Validator) QoE(raw json.RawMessage) (*QoEResult, error) {
	const stage = models.StageQoE

	fields, err := splitFields(stage, raw)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"reported_ebitda", "ebitda_bridge", "quality_assessment"} {
		if _, ok := fields[name]; !ok {
			return nil, missingField(stage, name)
		}
	}

	var result QoEResult
	if jsonErr := strictUnmarshal(raw, &result); jsonErr != nil {
		return nil, malformedField(stage, "", jsonErr)
	}
	result.AddbackCategories = defaultSlice(result.AddbackCategories)
	result.Recommendations = defaultStrings(result.Recommendations)
	result.QualityAssessment.RedFlags = defaultStrings(result.QualityAssessment.RedFlags)

	amounts := make([]float64, 0, len(result.AddbackCategories))
	for i := range result.AddbackCategories {
		cat := &result.AddbackCategories[i]
		if cat.Category == "" {
			return nil, missingField(stage, fmt.Sprintf("addback_categories[%d].category", i))
		}
		cat.Defensibility = models.NormalizeDefensibility(cat.Defensibility)
		amounts = append(amounts, cat.Amount)
	}

	result.TotalAddbacks = finance.TotalAdjustments(amounts)
	result.NormalizedEBITDA = finance.NormalizedEBITDA(result.ReportedEBITDA, amounts)

	bridge := &result.EBITDABridge
	bridge.ReportedEBITDA = result.ReportedEBITDA
	bridge.NormalizedEBITDA = finance.NormalizedEBITDA(bridge.ReportedEBITDA, []float64{
		bridge.PersonalExpenses,
		bridge.OneTimeFees,
		bridge.LitigationCosts,
		bridge.OwnerCompensationAdj,
		bridge.OtherAdjustments,
	})

	return &result, nil
}

// NWC validates the net-working-capital stage output. Net working capital,
// cash-conversion days and the trend direction are recomputed.
func (v *Validator) NWC(raw json.RawMessage) (*NWCResult, error) {
	const stage = models.StageNWC

	fields, err := splitFields(stage, raw)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"nwc_calculation", "trend_analysis", "cash_conversion_cycle", "recommended_nwc_target"} {
		if _, ok := fields[name]; !ok {
			return nil, missingField(stage, name)
		}
	}

	var result NWCResult
	if jsonErr := strictUnmarshal(raw, &result); jsonErr != nil {
		return nil, malformedField(stage, "", jsonErr)
	}
	result.AnomaliesDetected = defaultSlice(result.AnomaliesDetected)
	result.RedFlags = defaultStrings(result.RedFlags)
	result.Recommendations = defaultStrings(result.Recommendations)
	result.TrendAnalysis.Periods = defaultStrings(result.TrendAnalysis.Periods)
	result.RecommendedNWCTarget.NormalizationAdjustments = defaultSlice(result.RecommendedNWCTarget.NormalizationAdjustments)

	calc := &result.NWCCalculation
	calc.NetWorkingCapital = finance.NWC(calc.CurrentAssets, calc.CurrentLiabilities, calc.CashExcluded, calc.DebtExcluded)

	ccc := &result.CashConversionCycle
	ccc.CashConversionDays = finance.CashConversionDays(
		ccc.DaysSalesOutstanding,
		ccc.DaysInventoryOutstanding,
		ccc.DaysPayablesOutstanding,
	)

	result.TrendAnalysis.TrendDirection = finance.TrendDirection(result.TrendAnalysis.NWCValues)

	for i := range result.AnomaliesDetected {
		anomaly := &result.AnomaliesDetected[i]
		if anomaly.Type == "" {
			return nil, missingField(stage, fmt.Sprintf("anomalies_detected[%d].type", i))
		}
		anomaly.Severity = models.NormalizeSeverity(anomaly.Severity)
	}

	return &result, nil
}

// InterviewPrep validates the interview-prep stage output. The question
// count is recomputed from the question sets.
func (v *Validator) InterviewPrep(raw json.RawMessage) (*InterviewPrepResult, error) {
	const stage = models.StageInterviewPrep

	fields, err := splitFields(stage, raw)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"interview_prep_summary", "interview_duration_estimate"} {
		if _, ok := fields[name]; !ok {
			return nil, missingField(stage, name)
		}
	}

	var result InterviewPrepResult
	if jsonErr := strictUnmarshal(raw, &result); jsonErr != nil {
		return nil, malformedField(stage, "", jsonErr)
	}
	result.QuestionSets = defaultSlice(result.QuestionSets)
	result.ValidationChecklist = defaultSlice(result.ValidationChecklist)
	result.RecommendedAttendees = defaultStrings(result.RecommendedAttendees)
	result.InterviewPrepSummary.FocusAreas = defaultStrings(result.InterviewPrepSummary.FocusAreas)
	result.InterviewPrepSummary.PriorityTopics = defaultStrings(result.InterviewPrepSummary.PriorityTopics)

	questionCount := 0
	for i := range result.QuestionSets {
		set := &result.QuestionSets[i]
		if set.Category == "" {
			return nil, missingField(stage, fmt.Sprintf("question_sets[%d].category", i))
		}
		set.Severity = models.NormalizeSeverity(set.Severity)
		set.Questions = defaultSlice(set.Questions)
		for j := range set.Questions {
			q := &set.Questions[j]
			if q.Question == "" {
				return nil, missingField(stage, fmt.Sprintf("question_sets[%d].questions[%d].question", i, j))
			}
			q.DataRequests = defaultStrings(q.DataRequests)
			q.FollowUpQuestions = defaultStrings(q.FollowUpQuestions)
		}
		questionCount += len(set.Questions)
	}
	result.InterviewPrepSummary.TotalQuestionsGenerated = questionCount

	for i := range result.ValidationChecklist {
		item := &result.ValidationChecklist[i]
		if item.ClaimToVerify == "" {
			return nil, missingField(stage, fmt.Sprintf("validation_checklist[%d].claim_to_verify", i))
		}
		item.RequiredDocumentation = defaultStrings(item.RequiredDocumentation)
	}

	return &result, nil
}

// Report validates the report-generation stage output. Normalized EBITDA,
// the multiple impact, total addbacks, the NWC adjustment impact and the
// total price impact are all recomputed.
func (v *Validator) Report(raw json.RawMessage) (*ReportResult, error) {
	const stage = models.StageReport

	fields, err := splitFields(stage, raw)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"report_metadata", "executive_summary", "ebitda_bridge", "qoe_summary", "nwc_summary", "price_adjustments"} {
		if _, ok := fields[name]; !ok {
			return nil, missingField(stage, name)
		}
	}

	var result ReportResult
	if jsonErr := strictUnmarshal(raw, &result); jsonErr != nil {
		return nil, malformedField(stage, "", jsonErr)
	}

	if result.ReportMetadata.ReportID == "" {
		return nil, missingField(stage, "report_metadata.report_id")
	}
	if result.ReportMetadata.CompanyName == "" {
		return nil, missingField(stage, "report_metadata.company_name")
	}

	result.ExecutiveSummary.OverallRiskRating = models.NormalizeSeverity(result.ExecutiveSummary.OverallRiskRating)
	result.ExecutiveSummary.KeyHighlights = defaultStrings(result.ExecutiveSummary.KeyHighlights)
	result.ExecutiveSummary.CriticalIssues = defaultStrings(result.ExecutiveSummary.CriticalIssues)
	result.ExecutiveSummary.ValueDrivers = defaultStrings(result.ExecutiveSummary.ValueDrivers)
	result.RedFlags.Critical = defaultStrings(result.RedFlags.Critical)
	result.RedFlags.High = defaultStrings(result.RedFlags.High)
	result.RedFlags.Medium = defaultStrings(result.RedFlags.Medium)
	result.NextSteps = defaultStrings(result.NextSteps)
	result.NWCSummary.ManipulationFlags = defaultStrings(result.NWCSummary.ManipulationFlags)
	result.SPANegotiationPoints = defaultSlice(result.SPANegotiationPoints)

	bridge := &result.EBITDABridge
	bridge.Adjustments = defaultSlice(bridge.Adjustments)
	amounts := make([]float64, 0, len(bridge.Adjustments))
	for i := range bridge.Adjustments {
		adj := &bridge.Adjustments[i]
		if adj.Category == "" {
			return nil, missingField(stage, fmt.Sprintf("ebitda_bridge.adjustments[%d].category", i))
		}
		adj.Defensibility = models.NormalizeDefensibility(adj.Defensibility)
		amounts = append(amounts, adj.Amount)
	}
	bridge.NormalizedEBITDA = finance.NormalizedEBITDA(bridge.ReportedEBITDA, amounts)
	bridge.EBITDAMultipleImpact = finance.MultipleImpact(finance.TotalAdjustments(amounts), v.multiple)

	qoe := &result.QoESummary
	qoe.AddbackCategories = defaultSlice(qoe.AddbackCategories)
	qoeAmounts := make([]float64, 0, len(qoe.AddbackCategories))
	for i := range qoe.AddbackCategories {
		qoe.AddbackCategories[i].Defensibility = models.NormalizeDefensibility(qoe.AddbackCategories[i].Defensibility)
		qoeAmounts = append(qoeAmounts, qoe.AddbackCategories[i].Amount)
	}
	if len(qoeAmounts) > 0 {
		qoe.TotalAddbacks = finance.TotalAdjustments(qoeAmounts)
	}

	nwc := &result.NWCSummary
	nwc.AdjustmentImpact = nwc.RecommendedTarget - nwc.CurrentNWC

	for i := range result.SPANegotiationPoints {
		point := &result.SPANegotiationPoints[i]
		if point.Topic == "" {
			return nil, missingField(stage, fmt.Sprintf("spa_negotiation_points[%d].topic", i))
		}
		point.Priority = models.NormalizePriority(point.Priority)
	}

	price := &result.PriceAdjustments
	price.TotalImpact = price.RecommendedValuationDiscount + price.NWCPegAdjustment

	return &result, nil
}

// splitFields decodes the top level of a stage payload for required-field
// presence checks.
func splitFields(stage models.Stage, raw []byte) (map[string]json.RawMessage, *SchemaError) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &SchemaError{Stage: stage, Reason: "response body is empty"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &SchemaError{Stage: stage, Reason: fmt.Sprintf("response is not a JSON object: %v", err)}
	}
	return fields, nil
}

// strictUnmarshal decodes raw JSON rejecting type mismatches. Numeric
// fields that fail to parse as finite numbers surface here as
// UnmarshalTypeErrors (JSON cannot encode NaN or infinities).
func strictUnmarshal(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	return dec.Decode(dst)
}

// isJSONString reports whether a raw value is a JSON string.
func isJSONString(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, `"`)
}

// defaultStrings replaces a nil optional list with an empty one.
func defaultStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// defaultSlice replaces a nil optional list with an empty one.
func defaultSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
