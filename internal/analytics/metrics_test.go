package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bess-analytics/internal/timeseries"
)

func TestSOHClampedToPercent(t *testing.T) {
	c := NewMetricsCalculator(100, 48)

	assert.InDelta(t, 0, c.SOH(0), 1e-12)
	assert.InDelta(t, 50, c.SOH(50), 1e-12)
	assert.InDelta(t, 100, c.SOH(100), 1e-12)
	assert.InDelta(t, 100, c.SOH(200), 1e-12)
	assert.InDelta(t, 0, c.SOH(-5), 1e-12)
}

func TestSOHMonotone(t *testing.T) {
	c := NewMetricsCalculator(100, 48)
	prev := c.SOH(0)
	for capacity := 5.0; capacity <= 120; capacity += 5 {
		soh := c.SOH(capacity)
		assert.GreaterOrEqual(t, soh, prev)
		prev = soh
	}
}

func TestSOC(t *testing.T) {
	c := NewMetricsCalculator(100, 48)

	assert.InDelta(t, 75, c.SOC(75, 100), 1e-12)
	assert.InDelta(t, 100, c.SOC(120, 100), 1e-12)
	assert.InDelta(t, 0, c.SOC(50, 0), 1e-12)
	assert.InDelta(t, 0, c.SOC(50, -10), 1e-12)
}

func TestDegradationRate(t *testing.T) {
	c := NewMetricsCalculator(100, 48)

	// 5% drop over one month normalizes to 5%/month.
	assert.InDelta(t, 5, c.DegradationRate(timeseries.Series{100, 98, 95}, 30), 1e-12)
	// Same drop normalized over two months.
	assert.InDelta(t, 2.5, c.DegradationRate(timeseries.Series{100, 95}, 60), 1e-12)
	// Capacity gain is reported as zero, not negative.
	assert.Zero(t, c.DegradationRate(timeseries.Series{95, 100}, 30))
	// Underdetermined inputs.
	assert.Zero(t, c.DegradationRate(timeseries.Series{100}, 30))
	assert.Zero(t, c.DegradationRate(timeseries.Series{100, 95}, 0))
	assert.Zero(t, c.DegradationRate(timeseries.Series{0, 0}, 30))
}

func TestCountCycles(t *testing.T) {
	c := NewMetricsCalculator(100, 48)

	f := timeseries.NewFrame(4)
	f.SetColumn("soc", timeseries.Series{50, 100, 0, 100})

	full, partial := c.CountCycles(f)
	// Accumulated swing 250% of capacity: one full cycle plus half a cycle.
	assert.Equal(t, 1, full)
	assert.InDelta(t, 0.5, partial, 1e-12)
}

func TestCountCyclesWithoutSOC(t *testing.T) {
	c := NewMetricsCalculator(100, 48)
	full, partial := c.CountCycles(timeseries.NewFrame(3))
	assert.Zero(t, full)
	assert.Zero(t, partial)
}

func TestEnergyEfficiency(t *testing.T) {
	c := NewMetricsCalculator(100, 48)

	assert.InDelta(t, 90, c.EnergyEfficiency(100, 90), 1e-12)
	assert.InDelta(t, 100, c.EnergyEfficiency(100, 120), 1e-12)
	assert.Zero(t, c.EnergyEfficiency(0, 90))
	assert.Zero(t, c.EnergyEfficiency(-10, 90))
}

func TestAssessHealthStatus(t *testing.T) {
	c := NewMetricsCalculator(100, 48)

	tests := []struct {
		soh         float64
		temperature float64
		want        string
	}{
		{96, 25, HealthExcellent},
		{90, 25, HealthGood},
		{75, 25, HealthFair},
		{45, 25, HealthCritical},
		{60, 25, HealthPoor},
		// High SOH at abnormal temperature drops past the temperature-gated rungs.
		{96, 45, HealthFair},
		{90, 10, HealthFair},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.AssessHealthStatus(tt.soh, tt.temperature),
			"soh=%v temp=%v", tt.soh, tt.temperature)
	}
}

func TestComprehensiveMetrics(t *testing.T) {
	c := NewMetricsCalculator(100, 48)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	f := timeseries.NewFrameWithTimes([]time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)})
	f.SetColumn("voltage", timeseries.Series{48, 49, 50})
	f.SetColumn("current", timeseries.Series{10, 12, 14})
	f.SetColumn("temperature", timeseries.Series{24, 25, 26})
	f.SetColumn("capacity", timeseries.Series{100, 99, 96})
	f.SetColumn("soc", timeseries.Series{80, 60, 90})

	snapshot := c.ComprehensiveMetrics(f)

	require.Contains(t, snapshot, "soh")
	assert.InDelta(t, 96, snapshot["soh"].(float64), 1e-12)
	assert.InDelta(t, 4, snapshot["degradation_rate"].(float64), 1e-12)
	assert.InDelta(t, 90, snapshot["current_soc"].(float64), 1e-12)
	assert.Equal(t, 0, snapshot["full_cycles"])
	assert.InDelta(t, 0.5, snapshot["partial_cycles"].(float64), 1e-12)
	assert.InDelta(t, 49, snapshot["avg_voltage"].(float64), 1e-12)
	assert.InDelta(t, 25, snapshot["avg_temperature"].(float64), 1e-12)
	assert.InDelta(t, 26, snapshot["max_temperature"].(float64), 1e-12)
	assert.InDelta(t, 12, snapshot["avg_current"].(float64), 1e-12)
	assert.Equal(t, HealthExcellent, snapshot["health_status"])
}

func TestComprehensiveMetricsOmitsAbsentInputs(t *testing.T) {
	c := NewMetricsCalculator(100, 48)

	f := timeseries.NewFrame(2)
	f.SetColumn("voltage", timeseries.Series{48, 49})

	snapshot := c.ComprehensiveMetrics(f)
	assert.NotContains(t, snapshot, "soh")
	assert.NotContains(t, snapshot, "current_soc")
	assert.NotContains(t, snapshot, "health_status")
	assert.Contains(t, snapshot, "avg_voltage")
}

func TestCalculatorFallsBackToDefaults(t *testing.T) {
	c := NewMetricsCalculator(0, -1)
	assert.InDelta(t, 100, c.SOH(DefaultNominalCapacity), 1e-12)
}
