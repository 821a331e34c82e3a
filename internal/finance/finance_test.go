package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/dealscope/internal/models"
)

func f64(v float64) *float64 { return &v }

func TestVariance(t *testing.T) {
	assert.InDelta(t, 45000.0, Variance(145000, 100000), 1e-9)
	assert.InDelta(t, -5000.0, Variance(95000, 100000), 1e-9)
	assert.Zero(t, Variance(0, 0))
}

func TestVariancePct(t *testing.T) {
	pct := VariancePct(145000, 100000)
	require.NotNil(t, pct)
	assert.InDelta(t, 0.45, *pct, 1e-9)

	assert.Nil(t, VariancePct(145000, 0), "zero trial balance has no defined percentage")
}

func TestSeverityFromVariancePct(t *testing.T) {
	tests := []struct {
		pct  *float64
		name string
		want string
	}{
		{name: "45% is critical", pct: f64(0.45), want: models.SeverityCritical},
		{name: "exactly 20% is critical", pct: f64(0.20), want: models.SeverityCritical},
		{name: "negative 25% is critical", pct: f64(-0.25), want: models.SeverityCritical},
		{name: "12% is high", pct: f64(0.12), want: models.SeverityHigh},
		{name: "exactly 10% is high", pct: f64(0.10), want: models.SeverityHigh},
		{name: "7% is medium", pct: f64(0.07), want: models.SeverityMedium},
		{name: "exactly 5% is medium", pct: f64(0.05), want: models.SeverityMedium},
		{name: "2% is low", pct: f64(0.02), want: models.SeverityLow},
		{name: "undefined percentage is critical", pct: nil, want: models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityFromVariancePct(tt.pct, DefaultThresholds))
		})
	}
}

func TestThresholdsValid(t *testing.T) {
	assert.True(t, DefaultThresholds.Valid())
	assert.False(t, Thresholds{Critical: 0.05, High: 0.10, Medium: 0.20}.Valid())
	assert.False(t, Thresholds{}.Valid())
}

func TestNormalizedEBITDA(t *testing.T) {
	got := NormalizedEBITDA(5_000_000, []float64{200_000, 50_000, 14_000})
	assert.InDelta(t, 5_264_000.0, got, 1e-9)

	assert.InDelta(t, 5_000_000.0, NormalizedEBITDA(5_000_000, nil), 1e-9,
		"empty adjustments leave reported EBITDA unchanged")

	assert.InDelta(t, 4_800_000.0, NormalizedEBITDA(5_000_000, []float64{-200_000}), 1e-9)
}

func TestNWC(t *testing.T) {
	// (4.2M - 0.8M cash) - (2.1M - 0.5M debt) = 1.8M
	assert.InDelta(t, 1_800_000.0, NWC(4_200_000, 2_100_000, 800_000, 500_000), 1e-9)
	assert.Zero(t, NWC(0, 0, 0, 0))
}

func TestCashConversionDays(t *testing.T) {
	got := CashConversionDays(f64(45), f64(60), f64(30))
	require.NotNil(t, got)
	assert.InDelta(t, 75.0, *got, 1e-9)

	assert.Nil(t, CashConversionDays(f64(45), f64(60), nil), "nil DPO propagates")
	assert.Nil(t, CashConversionDays(nil, f64(60), f64(30)), "nil DSO propagates")
	assert.Nil(t, CashConversionDays(f64(45), nil, f64(30)), "nil DIO propagates")
}

func TestTrendDirection(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		series []*float64
	}{
		{
			name:   "leading nil skipped, decreasing",
			series: []*float64{nil, f64(1_200_000), f64(900_000)},
			want:   TrendDecreasing,
		},
		{
			name:   "increasing beyond tolerance",
			series: []*float64{f64(1_000_000), f64(1_100_000), f64(1_500_000)},
			want:   TrendIncreasing,
		},
		{
			name:   "within one percent band is stable",
			series: []*float64{f64(1_000_000), f64(1_005_000)},
			want:   TrendStable,
		},
		{
			name:   "single point is insufficient",
			series: []*float64{nil, f64(900_000), nil},
			want:   TrendInsufficientData,
		},
		{
			name:   "empty series is insufficient",
			series: nil,
			want:   TrendInsufficientData,
		},
		{
			name:   "trailing nil ignored",
			series: []*float64{f64(800_000), f64(1_200_000), nil},
			want:   TrendIncreasing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrendDirection(tt.series))
		})
	}
}

func TestMultipleImpact(t *testing.T) {
	assert.InDelta(t, 2_640_000.0, MultipleImpact(264_000, 10), 1e-9)
}
