package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRowsUnionOfColumns(t *testing.T) {
	f := FromRows([]map[string]any{
		{"timestamp": "2024-01-01T00:00:00Z", "voltage": 48.0},
		{"timestamp": "2024-01-01T00:01:00Z", "current": 10.0},
	})

	require.Equal(t, 2, f.Len())
	assert.Equal(t, []string{"current", "voltage"}, f.Columns())
	assert.True(t, f.HasTimestamp())

	voltage := f.Column("voltage")
	assert.InDelta(t, 48, voltage[0], 1e-12)
	assert.True(t, math.IsNaN(voltage[1]))

	current := f.Column("current")
	assert.True(t, math.IsNaN(current[0]))
	assert.InDelta(t, 10, current[1], 1e-12)
}

func TestFromRowsParsesCellVariants(t *testing.T) {
	f := FromRows([]map[string]any{
		{
			"timestamp":   "2024-06-01 12:30:00",
			"voltage":     "48.5",
			"current":     12,
			"temperature": 25.5,
			"charging":    true,
		},
	})

	require.Equal(t, 1, f.Len())
	assert.True(t, f.TimeValid(0))
	assert.True(t, f.Times()[0].Equal(time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)))
	assert.InDelta(t, 48.5, f.Column("voltage")[0], 1e-12)
	assert.InDelta(t, 12, f.Column("current")[0], 1e-12)
	assert.InDelta(t, 1, f.Column("charging")[0], 1e-12)
}

func TestFromRowsInvalidCellsAreMissing(t *testing.T) {
	f := FromRows([]map[string]any{
		{"timestamp": "not-a-time", "voltage": "abc"},
	})

	assert.True(t, f.HasTimestamp())
	assert.False(t, f.TimeValid(0))
	assert.False(t, f.AllTimesValid())
	assert.True(t, math.IsNaN(f.Column("voltage")[0]))
}

func TestSortByTimestampStable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := FromRows([]map[string]any{
		{"timestamp": base.Add(2 * time.Minute).Format(time.RFC3339), "voltage": 3.0},
		{"timestamp": base.Format(time.RFC3339), "voltage": 1.0},
		{"timestamp": base.Format(time.RFC3339), "voltage": 2.0},
	})

	sorted := f.SortByTimestamp()
	voltage := sorted.Column("voltage")
	assert.Equal(t, Series{1, 2, 3}, voltage)
}

func TestSelectKeepsFlagsAndTimes(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFrameWithTimes([]time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)})
	f.SetColumn("voltage", Series{48, 49, 50})
	f.SetFlag("is_anomaly", []bool{false, true, false})

	sub := f.Select([]int{1})
	require.Equal(t, 1, sub.Len())
	assert.True(t, sub.Times()[0].Equal(base.Add(time.Minute)))
	assert.InDelta(t, 49, sub.Column("voltage")[0], 1e-12)
	assert.Equal(t, []bool{true}, sub.Flag("is_anomaly"))
}

func TestRecordsMissingBecomesNil(t *testing.T) {
	f := NewFrame(2)
	col := NewSeries(2)
	col[0] = 48
	f.SetColumn("voltage", col)
	f.SetFlag("is_anomaly", []bool{true, false})

	records := f.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 48.0, records[0]["voltage"])
	assert.Nil(t, records[1]["voltage"])
	assert.Equal(t, true, records[0]["is_anomaly"])
}

func TestSetColumnLengthMismatchPanics(t *testing.T) {
	f := NewFrame(3)
	assert.Panics(t, func() {
		f.SetColumn("voltage", Series{1, 2})
	})
}

func TestCloneIsIndependent(t *testing.T) {
	f := NewFrame(1)
	f.SetColumn("voltage", Series{48})

	clone := f.Clone()
	clone.Column("voltage")[0] = 99

	assert.InDelta(t, 48, f.Column("voltage")[0], 1e-12)
}
