package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bess-analytics/internal/timeseries"
)

func mustDetector(t *testing.T, contamination float64) *Detector {
	t.Helper()
	d, err := NewDetector(contamination)
	require.NoError(t, err)
	return d
}

func TestNewDetectorValidatesContamination(t *testing.T) {
	for _, c := range []float64{-0.1, 0.51, math.NaN()} {
		_, err := NewDetector(c)
		assert.ErrorIs(t, err, ErrInvalidContamination, "contamination=%v", c)
	}
	for _, c := range []float64{0, 0.05, 0.5} {
		_, err := NewDetector(c)
		assert.NoError(t, err, "contamination=%v", c)
	}
}

func TestDetectStatisticalFlagsSpike(t *testing.T) {
	temps := make(timeseries.Series, 50)
	for i := range temps {
		temps[i] = 25
	}
	temps[17] = 200

	f := timeseries.NewFrame(len(temps))
	f.SetColumn("temperature", temps)

	out := mustDetector(t, DefaultContamination).DetectStatistical(f, []string{"temperature"}, DefaultZScoreThreshold)

	flags := out.Flag("temperature_anomaly")
	require.NotNil(t, flags)
	for i, v := range flags {
		assert.Equal(t, i == 17, v, "row %d", i)
	}
	assert.Equal(t, out.Flag("is_anomaly"), flags)

	zscores := out.Column("temperature_zscore")
	require.NotNil(t, zscores)
	assert.Greater(t, zscores[17], DefaultZScoreThreshold)
}

func TestDetectStatisticalConstantColumn(t *testing.T) {
	f := timeseries.NewFrame(5)
	f.SetColumn("voltage", timeseries.Series{48, 48, 48, 48, 48})

	out := mustDetector(t, DefaultContamination).DetectStatistical(f, nil, DefaultZScoreThreshold)
	for _, v := range out.Flag("voltage_anomaly") {
		assert.False(t, v)
	}
}

func TestDetectStatisticalCombinesColumns(t *testing.T) {
	n := 30
	voltage := make(timeseries.Series, n)
	current := make(timeseries.Series, n)
	for i := range voltage {
		voltage[i] = 48
		current[i] = 10
	}
	voltage[3] = 500
	current[21] = -900

	f := timeseries.NewFrame(n)
	f.SetColumn("voltage", voltage)
	f.SetColumn("current", current)

	out := mustDetector(t, DefaultContamination).DetectStatistical(f, nil, DefaultZScoreThreshold)
	combined := out.Flag("is_anomaly")
	assert.True(t, combined[3])
	assert.True(t, combined[21])
	assert.False(t, combined[0])
}

func TestDetectThresholdViolations(t *testing.T) {
	f := timeseries.NewFrame(5)
	voltage := make(timeseries.Series, 5)
	for i := range voltage {
		voltage[i] = 65
	}
	f.SetColumn("voltage", voltage)

	out := mustDetector(t, DefaultContamination).DetectThresholdViolations(f, nil)

	for i := 0; i < 5; i++ {
		assert.True(t, out.Flag("voltage_violation")[i], "row %d", i)
		assert.True(t, out.Flag("has_violation")[i], "row %d", i)
	}
}

func TestDetectThresholdViolationsCustomBounds(t *testing.T) {
	f := timeseries.NewFrame(3)
	f.SetColumn("temperature", timeseries.Series{25, 41, 30})

	out := mustDetector(t, DefaultContamination).DetectThresholdViolations(f, map[string]Bounds{
		"temperature": {Min: 10, Max: 40},
	})

	assert.Equal(t, []bool{false, true, false}, out.Flag("temperature_violation"))
	assert.False(t, out.HasFlag("voltage_violation"))
}

func TestDetectSuddenChanges(t *testing.T) {
	f := timeseries.NewFrame(4)
	f.SetColumn("temperature", timeseries.Series{20, 21, 45, 46})

	out, err := mustDetector(t, DefaultContamination).DetectSuddenChanges(f, "temperature", DefaultChangeThreshold)
	require.NoError(t, err)

	assert.Equal(t, []bool{false, false, true, false}, out.Flag("temperature_sudden_change"))
	assert.InDelta(t, 24, out.Column("temperature_delta")[2], 1e-12)
}

func TestDetectSuddenChangesMissingColumn(t *testing.T) {
	_, err := mustDetector(t, DefaultContamination).DetectSuddenChanges(timeseries.NewFrame(3), "temperature", DefaultChangeThreshold)
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "temperature", missing.Column)
}

func TestDetectPatternDeviations(t *testing.T) {
	window := 20
	values := make(timeseries.Series, window)
	for i := 0; i < window-1; i++ {
		if i%2 == 0 {
			values[i] = 49.9
		} else {
			values[i] = 50.1
		}
	}
	values[window-1] = 60

	f := timeseries.NewFrame(window)
	f.SetColumn("voltage", values)

	out, err := mustDetector(t, DefaultContamination).DetectPatternDeviations(f, "voltage", window)
	require.NoError(t, err)

	flags := out.Flag("voltage_pattern_deviation")
	for i := 0; i < window-1; i++ {
		assert.False(t, flags[i], "leading row %d", i)
	}
	assert.True(t, flags[window-1])
	assert.True(t, math.IsNaN(out.Column("voltage_rolling_std")[0]))
}

func TestDetectPatternDeviationsMissingColumn(t *testing.T) {
	_, err := mustDetector(t, DefaultContamination).DetectPatternDeviations(timeseries.NewFrame(3), "voltage", 0)
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
}

func TestDetectIsolationForestFlagsOutlier(t *testing.T) {
	n := 41
	voltage := make(timeseries.Series, n)
	current := make(timeseries.Series, n)
	for i := 0; i < n-1; i++ {
		voltage[i] = 48 + float64(i%5)*0.2
		current[i] = 10 + float64(i%7)*0.3
	}
	voltage[n-1] = 500
	current[n-1] = -900

	f := timeseries.NewFrame(n)
	f.SetColumn("voltage", voltage)
	f.SetColumn("current", current)

	d := mustDetector(t, 0.05)
	assert.False(t, d.IsFitted())

	out, err := d.DetectIsolationForest(f, nil)
	require.NoError(t, err)
	assert.True(t, d.IsFitted())

	flags := out.Flag("isolation_forest_anomaly")
	require.NotNil(t, flags)
	assert.True(t, flags[n-1], "far outlier must be flagged")

	flagged := 0
	for _, v := range flags {
		if v {
			flagged++
		}
	}
	assert.LessOrEqual(t, flagged, 4)
}

func TestDetectIsolationForestZeroContaminationNeverFlags(t *testing.T) {
	f := timeseries.NewFrame(10)
	col := make(timeseries.Series, 10)
	for i := range col {
		col[i] = float64(i)
	}
	col[9] = 1000
	f.SetColumn("voltage", col)

	out, err := mustDetector(t, 0).DetectIsolationForest(f, nil)
	require.NoError(t, err)
	for _, v := range out.Flag("isolation_forest_anomaly") {
		assert.False(t, v)
	}
}

func TestDetectIsolationForestDeterministic(t *testing.T) {
	f := timeseries.NewFrame(30)
	col := make(timeseries.Series, 30)
	for i := range col {
		col[i] = float64(i % 6)
	}
	col[13] = 400
	f.SetColumn("voltage", col)

	first, err := mustDetector(t, 0.1).DetectIsolationForest(f, nil)
	require.NoError(t, err)
	second, err := mustDetector(t, 0.1).DetectIsolationForest(f, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Flag("isolation_forest_anomaly"), second.Flag("isolation_forest_anomaly"))
}

func TestRefitReplacesModel(t *testing.T) {
	f := timeseries.NewFrame(10)
	col := make(timeseries.Series, 10)
	for i := range col {
		col[i] = float64(i)
	}
	f.SetColumn("voltage", col)

	d := mustDetector(t, 0.1)
	_, err := d.DetectIsolationForest(f, nil)
	require.NoError(t, err)
	require.True(t, d.IsFitted())

	require.NoError(t, d.Refit(f, []string{"voltage"}))
	assert.True(t, d.IsFitted())
}

func TestDetectAll(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	n := 40
	times := make([]time.Time, n)
	voltage := make(timeseries.Series, n)
	current := make(timeseries.Series, n)
	temperature := make(timeseries.Series, n)
	for i := 0; i < n; i++ {
		times[i] = base.Add(time.Duration(i) * time.Minute)
		voltage[i] = 48 + float64(i%3)*0.5
		current[i] = 10 + float64(i%4)*0.25
		temperature[i] = 25 + float64(i%5)*0.1
	}
	// One clearly sick sample: out of envelope and far from the rest.
	voltage[30] = 65
	temperature[30] = 70

	f := timeseries.NewFrameWithTimes(times)
	f.SetColumn("voltage", voltage)
	f.SetColumn("current", current)
	f.SetColumn("temperature", temperature)

	out, err := mustDetector(t, 0.05).DetectAll(f, nil)
	require.NoError(t, err)

	for _, flag := range []string{
		"is_anomaly",
		"isolation_forest_anomaly",
		"has_violation",
		"temperature_sudden_change",
		"voltage_sudden_change",
		"voltage_pattern_deviation",
		"current_pattern_deviation",
	} {
		assert.True(t, out.HasFlag(flag), flag)
	}

	assert.True(t, out.Flag("voltage_violation")[30])
	assert.True(t, out.Flag("temperature_violation")[30])
	assert.True(t, out.Flag("has_violation")[30])

	score := out.Column("anomaly_score")
	require.NotNil(t, score)
	for i, v := range score {
		assert.GreaterOrEqual(t, v, 0.0, "row %d", i)
		assert.LessOrEqual(t, v, 1.0, "row %d", i)
	}
	assert.Greater(t, score[30], score[0])
}

func TestSummarize(t *testing.T) {
	f := timeseries.NewFrame(4)
	f.SetFlag("is_anomaly", []bool{true, false, true, false})
	f.SetFlag("voltage_violation", []bool{false, false, true, false})
	f.SetFlag("charging", []bool{true, true, true, true})

	summary := Summarize(f)
	assert.Equal(t, 4, summary.TotalRecords)
	assert.Equal(t, 2, summary.AnomalyCount)
	assert.InDelta(t, 50, summary.AnomalyPercentage, 1e-12)
	assert.Equal(t, 2, summary.AnomalyTypes["is_anomaly"])
	assert.Equal(t, 1, summary.AnomalyTypes["voltage_violation"])
	assert.NotContains(t, summary.AnomalyTypes, "charging")
}

func TestSummarizeEmptyFrame(t *testing.T) {
	summary := Summarize(timeseries.NewFrame(0))
	assert.Zero(t, summary.AnomalyCount)
	assert.Zero(t, summary.AnomalyPercentage)
}
