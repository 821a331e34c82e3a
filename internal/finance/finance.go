// Package finance provides pure derivation functions over validated stage
// outputs: variances, severity classification, EBITDA bridge totals, net
// working capital metrics and cash-conversion arithmetic. Every function is
// stateless and total over well-typed input; malformed numerics are rejected
// earlier by the stage contract validator.
package finance

import (
	"math"

	"github.com/harborview/dealscope/internal/models"
)

// Thresholds classify a reconciliation variance percentage into a severity
// tier. Values are absolute fractions of the trial-balance amount.
type Thresholds struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// DefaultThresholds is the policy default: 20% critical, 10% high, 5% medium.
// Engagement config may override it.
var DefaultThresholds = Thresholds{
	Critical: 0.20,
	High:     0.10,
	Medium:   0.05,
}

// Valid reports whether thresholds are positive and strictly ordered.
func (t Thresholds) Valid() bool {
	return t.Medium > 0 && t.High > t.Medium && t.Critical > t.High
}

// Variance is the audited amount minus the trial-balance amount.
func Variance(audited, trialBalance float64) float64 {
	return audited - trialBalance
}

// VariancePct returns variance as a fraction of the trial-balance amount,
// or nil when the trial balance is zero (division undefined, flagged
// upstream rather than coerced).
func VariancePct(audited, trialBalance float64) *float64 {
	if trialBalance == 0 {
		return nil
	}
	pct := Variance(audited, trialBalance) / trialBalance
	return &pct
}

// SeverityFromVariancePct classifies a variance percentage. A nil
// percentage (zero trial balance) is always critical: the account appeared
// from nowhere or vanished entirely.
func SeverityFromVariancePct(pct *float64, t Thresholds) string {
	if pct == nil {
		return models.SeverityCritical
	}
	abs := math.Abs(*pct)
	switch {
	case abs >= t.Critical:
		return models.SeverityCritical
	case abs >= t.High:
		return models.SeverityHigh
	case abs >= t.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// NormalizedEBITDA is reported EBITDA plus the sum of adjustment amounts.
// The empty adjustment list yields the reported figure unchanged.
func NormalizedEBITDA(reported float64, adjustments []float64) float64 {
	return reported + TotalAdjustments(adjustments)
}

// TotalAdjustments sums adjustment amounts.
func TotalAdjustments(adjustments []float64) float64 {
	var total float64
	for _, amount := range adjustments {
		total += amount
	}
	return total
}

// NWC computes net working capital with cash and debt explicitly excluded:
// (current assets - cash) - (current liabilities - debt).
func NWC(currentAssets, currentLiabilities, cashExcluded, debtExcluded float64) float64 {
	return (currentAssets - cashExcluded) - (currentLiabilities - debtExcluded)
}

// CashConversionDays is DSO + DIO - DPO. A nil input propagates to a nil
// result; missing components are never silently treated as zero.
func CashConversionDays(dso, dio, dpo *float64) *float64 {
	if dso == nil || dio == nil || dpo == nil {
		return nil
	}
	days := *dso + *dio - *dpo
	return &days
}

// Trend directions returned by TrendDirection.
const (
	TrendIncreasing       = "increasing"
	TrendDecreasing       = "decreasing"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// trendTolerance is the band, as a fraction of the first value, within
// which a series counts as stable.
const trendTolerance = 0.01

// TrendDirection compares the first and last non-nil values of a period
// series. Movement beyond a 1% tolerance band is a trend; fewer than two
// non-nil points is insufficient data.
func TrendDirection(series []*float64) string {
	var first, last *float64
	count := 0
	for _, v := range series {
		if v == nil {
			continue
		}
		if first == nil {
			first = v
		}
		last = v
		count++
	}
	if count < 2 {
		return TrendInsufficientData
	}

	band := math.Abs(*first) * trendTolerance
	switch {
	case *last > *first+band:
		return TrendIncreasing
	case *last < *first-band:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// MultipleImpact estimates the valuation impact of total EBITDA adjustments
// at a deal multiple.
func MultipleImpact(totalAdjustments, multiple float64) float64 {
	return totalAdjustments * multiple
}
