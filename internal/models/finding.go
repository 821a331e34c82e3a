package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Business functions a risk finding can touch.
const (
	AreaFinance        = "Finance"
	AreaAccounting     = "Accounting"
	AreaEarnings       = "Earnings Quality"
	AreaWorkingCapital = "Working Capital"
	AreaOperations     = "Operations"
)

// RiskFinding is one normalized risk surfaced by an analytical stage.
type RiskFinding struct {
	ID                string   `json:"id"`
	RiskType          string   `json:"risk_type"`
	Description       string   `json:"description"`
	Severity          string   `json:"severity"`
	RecommendedAction string   `json:"recommended_action"`
	Origin            Stage    `json:"origin"`
	AffectedAreas     []string `json:"affected_areas"`
}

// GenerateFindingID creates a stable, deterministic ID for a finding.
// Identical risks produce identical IDs across runs, which keeps dedupe
// and stored history consistent.
func GenerateFindingID(riskType string, affectedAreas []string) string {
	core := fmt.Sprintf("%s:%s", strings.ToLower(riskType), strings.ToLower(joinSortedAreas(affectedAreas)))
	hash := sha256.Sum256([]byte(core))
	return hex.EncodeToString(hash[:8]) // First 8 bytes for readability
}

// NewRiskFinding creates a finding with a generated ID and normalized severity.
func NewRiskFinding(riskType, description, severity string, areas []string, origin Stage) *RiskFinding {
	return &RiskFinding{
		ID:            GenerateFindingID(riskType, areas),
		RiskType:      riskType,
		Description:   description,
		Severity:      NormalizeSeverity(severity),
		AffectedAreas: areas,
		Origin:        origin,
	}
}

// DedupeKey identifies findings that describe the same risk: same type and
// same set of affected areas, order-insensitive.
func (f *RiskFinding) DedupeKey() string {
	return strings.ToLower(f.RiskType) + "|" + strings.ToLower(joinSortedAreas(f.AffectedAreas))
}

// CrossFunctional reports whether the finding spans at least two distinct
// business functions.
func (f *RiskFinding) CrossFunctional() bool {
	seen := make(map[string]struct{}, len(f.AffectedAreas))
	for _, area := range f.AffectedAreas {
		seen[strings.ToLower(strings.TrimSpace(area))] = struct{}{}
	}
	return len(seen) >= 2
}

// IsValid checks if a finding has all required fields.
func (f *RiskFinding) IsValid() error {
	if f.RiskType == "" {
		return fmt.Errorf("finding missing required field: risk_type")
	}
	if f.Severity == "" {
		return fmt.Errorf("finding missing required field: severity")
	}
	if len(f.AffectedAreas) == 0 {
		return fmt.Errorf("finding missing required field: affected_areas")
	}
	return nil
}

func joinSortedAreas(areas []string) string {
	sorted := make([]string, 0, len(areas))
	for _, area := range areas {
		sorted = append(sorted, strings.TrimSpace(area))
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// AggregatedFindings is the unified cross-functional findings model. All
// counts are derived by scanning the deduplicated finding set; they are
// never supplied independently.
type AggregatedFindings struct {
	TotalRedFlags        int           `json:"total_red_flags"`
	CriticalIssues       int           `json:"critical_issues"`
	HighPriorityIssues   int           `json:"high_priority_issues"`
	CrossFunctionalRisks []RiskFinding `json:"cross_functional_risks"`
	SingleFunctionRisks  []RiskFinding `json:"single_function_risks"`
	Partial              bool          `json:"partial"`
	MissingStages        []Stage       `json:"missing_stages,omitempty"`
}

// AllFindings returns the combined deduplicated finding set, cross-functional
// first, preserving aggregation order within each group.
func (a *AggregatedFindings) AllFindings() []RiskFinding {
	all := make([]RiskFinding, 0, len(a.CrossFunctionalRisks)+len(a.SingleFunctionRisks))
	all = append(all, a.CrossFunctionalRisks...)
	all = append(all, a.SingleFunctionRisks...)
	return all
}
