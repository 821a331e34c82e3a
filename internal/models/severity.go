// Package models contains data structures for Dealscope due-diligence findings.
package models

import "strings"

// Severity levels as constants for type safety and consistency.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Defensibility tiers for EBITDA adjustments.
const (
	DefensibilityHigh    = "high"
	DefensibilityMedium  = "medium"
	DefensibilityLow     = "low"
	DefensibilityUnknown = "unknown"
)

// ValidSeverities returns all valid severity levels for validation.
func ValidSeverities() []string {
	return []string{
		SeverityCritical,
		SeverityHigh,
		SeverityMedium,
		SeverityLow,
	}
}

// IsValidSeverity checks if a severity level is valid.
func IsValidSeverity(severity string) bool {
	switch severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// NormalizeSeverity maps the free-form severity strings produced by the
// analytical stages onto the closed set. Upstream text generation cannot be
// constrained to a fixed vocabulary, so unrecognized values normalize to
// medium rather than being rejected.
func NormalizeSeverity(severity string) string {
	s := strings.ToLower(strings.TrimSpace(severity))
	if IsValidSeverity(s) {
		return s
	}
	switch s {
	case "very-high", "very high", "severe":
		return SeverityCritical
	case "elevated":
		return SeverityHigh
	case "moderate":
		return SeverityMedium
	case "minor", "info", "informational":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// NormalizeDefensibility maps free-form defensibility strings onto the
// closed set, defaulting to unknown.
func NormalizeDefensibility(defensibility string) string {
	switch strings.ToLower(strings.TrimSpace(defensibility)) {
	case "high", "strong":
		return DefensibilityHigh
	case "medium", "moderate":
		return DefensibilityMedium
	case "low", "weak":
		return DefensibilityLow
	default:
		return DefensibilityUnknown
	}
}

// NormalizePriority maps free-form priority strings onto the severity set,
// defaulting to medium. SPA negotiation points arrive with priorities from
// the same unconstrained vocabulary as severities.
func NormalizePriority(priority string) string {
	return NormalizeSeverity(priority)
}

// severityRank orders severities from most to least severe.
var severityRank = map[string]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// SeverityRank returns the sort rank of a severity; lower is more severe.
// Unknown strings rank below low.
func SeverityRank(severity string) int {
	if rank, ok := severityRank[severity]; ok {
		return rank
	}
	return len(severityRank)
}

// MoreSevere reports whether a is strictly more severe than b.
func MoreSevere(a, b string) bool {
	return SeverityRank(a) < SeverityRank(b)
}
