package analytics

import (
	"math"

	"bess-analytics/internal/timeseries"
)

// Health status categories ordered from best to worst.
const (
	HealthExcellent = "excellent"
	HealthGood      = "good"
	HealthFair      = "fair"
	HealthPoor      = "poor"
	HealthCritical  = "critical"
)

const (
	// DefaultNominalCapacity is the assumed pack capacity in kWh.
	DefaultNominalCapacity = 100.0
	// DefaultNominalVoltage is the assumed pack voltage in V.
	DefaultNominalVoltage = 48.0
)

// Snapshot is a flat mapping of named metric results derived from one
// telemetry table. Keys whose inputs were absent are omitted.
type Snapshot map[string]any

// MetricsCalculator computes battery health and performance indicators
// against fixed nominal specifications.
type MetricsCalculator struct {
	nominalCapacity float64
	nominalVoltage  float64
}

// NewMetricsCalculator returns a calculator; non-positive specifications
// fall back to the defaults.
func NewMetricsCalculator(nominalCapacity, nominalVoltage float64) *MetricsCalculator {
	if nominalCapacity <= 0 {
		nominalCapacity = DefaultNominalCapacity
	}
	if nominalVoltage <= 0 {
		nominalVoltage = DefaultNominalVoltage
	}
	return &MetricsCalculator{
		nominalCapacity: nominalCapacity,
		nominalVoltage:  nominalVoltage,
	}
}

// SOH returns the State of Health as a percentage of nominal capacity,
// clamped to [0, 100].
func (c *MetricsCalculator) SOH(currentCapacity float64) float64 {
	return clampPercent(currentCapacity / c.nominalCapacity * 100)
}

// SOC returns the State of Charge as a percentage of maximum capacity,
// clamped to [0, 100]. A non-positive maximum yields 0.
func (c *MetricsCalculator) SOC(currentCharge, maxCapacity float64) float64 {
	if maxCapacity <= 0 {
		return 0
	}
	return clampPercent(currentCharge / maxCapacity * 100)
}

// DegradationRate returns the capacity drop from the first to the last
// sample, normalized to percent per month by the caller-supplied period.
// The period is a normalization constant, deliberately decoupled from the
// actual timestamp span of the series. Fewer than two samples yield 0.
func (c *MetricsCalculator) DegradationRate(capacity timeseries.Series, periodDays float64) float64 {
	if len(capacity) < 2 || periodDays <= 0 {
		return 0
	}
	initial := capacity[0]
	final := capacity[len(capacity)-1]
	if math.IsNaN(initial) || math.IsNaN(final) || initial == 0 {
		return 0
	}
	degradation := (initial - final) / initial * 100
	rate := degradation / (periodDays / 30.0)
	if rate < 0 {
		return 0
	}
	return rate
}

// CountCycles accumulates absolute SOC swings into full and partial
// charge/discharge cycles (simplified rainflow counting: a full cycle is a
// 0-100-0 swing). Tables without an soc column count zero cycles.
func (c *MetricsCalculator) CountCycles(f *timeseries.Frame) (fullCycles int, partialCycles float64) {
	soc := f.Column("soc")
	if soc == nil {
		return 0, 0
	}
	accumulated := 0.0
	for i := 1; i < len(soc); i++ {
		delta := math.Abs(soc[i] - soc[i-1])
		if math.IsNaN(delta) {
			continue
		}
		accumulated += delta / 100.0
	}
	fullCycles = int(accumulated / 2)
	partialCycles = math.Mod(accumulated, 2)
	return fullCycles, partialCycles
}

// EnergyEfficiency returns round-trip efficiency as a percentage, clamped to
// [0, 100]. Non-positive energy in yields 0.
func (c *MetricsCalculator) EnergyEfficiency(energyIn, energyOut float64) float64 {
	if energyIn <= 0 {
		return 0
	}
	return clampPercent(energyOut / energyIn * 100)
}

// AssessHealthStatus maps SOH and average temperature onto a categorical
// status. The rungs are evaluated strictly in order.
func (c *MetricsCalculator) AssessHealthStatus(soh, temperature float64) string {
	tempNormal := temperature >= 15 && temperature <= 35
	switch {
	case soh >= 95 && tempNormal:
		return HealthExcellent
	case soh >= 85 && tempNormal:
		return HealthGood
	case soh >= 70:
		return HealthFair
	case soh >= 50:
		return HealthPoor
	default:
		return HealthCritical
	}
}

// ComprehensiveMetrics computes whichever metrics the table's columns
// support. Absent or degenerate inputs omit their keys rather than failing.
func (c *MetricsCalculator) ComprehensiveMetrics(f *timeseries.Frame) Snapshot {
	metrics := Snapshot{}

	if capacity := f.Column("capacity"); capacity != nil {
		if current := capacity.Last(); !math.IsNaN(current) {
			metrics["soh"] = c.SOH(current)
			metrics["degradation_rate"] = c.DegradationRate(capacity, 30)
		}
	}

	if soc := f.Column("soc"); soc != nil {
		if current := soc.Last(); !math.IsNaN(current) {
			metrics["current_soc"] = current
		}
		fullCycles, partial := c.CountCycles(f)
		metrics["full_cycles"] = fullCycles
		metrics["partial_cycles"] = partial
	}

	if voltage := f.Column("voltage"); voltage != nil {
		putIfValid(metrics, "avg_voltage", voltage.Mean())
		putIfValid(metrics, "voltage_std", voltage.Std())
	}

	if temperature := f.Column("temperature"); temperature != nil {
		putIfValid(metrics, "avg_temperature", temperature.Mean())
		putIfValid(metrics, "max_temperature", temperature.Max())
	}

	if current := f.Column("current"); current != nil {
		putIfValid(metrics, "avg_current", current.Mean())
	}

	soh, hasSOH := metrics["soh"].(float64)
	avgTemp, hasTemp := metrics["avg_temperature"].(float64)
	if hasSOH && hasTemp {
		metrics["health_status"] = c.AssessHealthStatus(soh, avgTemp)
	}
	return metrics
}

func putIfValid(metrics Snapshot, key string, v float64) {
	if !math.IsNaN(v) {
		metrics[key] = v
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
