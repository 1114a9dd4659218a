package timeseries

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimestampColumn is the reserved name of the time axis.
const TimestampColumn = "timestamp"

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Frame is an ordered, column-oriented table of telemetry samples. Numeric
// columns hold float64 with NaN for missing cells; boolean flag columns are
// kept separately so detector annotations never collide with measurements.
// All transforms are additive: raw columns are never removed or overwritten
// by annotation passes.
type Frame struct {
	n       int
	names   []string
	cols    map[string]Series
	hasTime bool
	times   []time.Time
	timesOK []bool
	flagOrd []string
	flags   map[string][]bool
}

// NewFrame returns an empty frame with n rows and no columns.
func NewFrame(n int) *Frame {
	return &Frame{
		n:     n,
		cols:  make(map[string]Series),
		flags: make(map[string][]bool),
	}
}

// NewFrameWithTimes returns a frame whose time axis is the given instants,
// all of them valid.
func NewFrameWithTimes(times []time.Time) *Frame {
	f := NewFrame(len(times))
	f.hasTime = true
	f.times = append([]time.Time(nil), times...)
	f.timesOK = make([]bool, len(times))
	for i := range f.timesOK {
		f.timesOK[i] = true
	}
	return f
}

// FromRows materializes a frame from row mappings, e.g. a decoded JSON
// request body. The column set is the union of keys across all rows; cells
// absent on a given row are missing. Unparseable numeric cells are missing,
// unparseable timestamps are kept as invalid so validation can report them.
func FromRows(rows []map[string]any) *Frame {
	f := NewFrame(len(rows))

	for _, row := range rows {
		for key := range row {
			if key == TimestampColumn {
				if !f.hasTime {
					f.hasTime = true
					f.times = make([]time.Time, f.n)
					f.timesOK = make([]bool, f.n)
				}
				continue
			}
			if _, ok := f.cols[key]; !ok {
				f.names = append(f.names, key)
				f.cols[key] = NewSeries(f.n)
			}
		}
	}
	sort.Strings(f.names)

	for i, row := range rows {
		for key, raw := range row {
			if key == TimestampColumn {
				if ts, ok := parseTimestamp(raw); ok {
					f.times[i] = ts
					f.timesOK[i] = true
				}
				continue
			}
			if v, ok := parseNumeric(raw); ok {
				f.cols[key][i] = v
			}
		}
	}
	return f
}

func parseTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	case json.Number:
		if sec, err := v.Float64(); err == nil {
			return parseTimestamp(sec)
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func parseNumeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		return parsed, err == nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil && !math.IsNaN(parsed)
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.n }

// Columns returns numeric column names in stable order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.names...)
}

// Has reports whether the frame carries the named column; the timestamp
// column counts.
func (f *Frame) Has(name string) bool {
	if name == TimestampColumn {
		return f.hasTime
	}
	_, ok := f.cols[name]
	return ok
}

// Column returns the named numeric series, nil when absent. The returned
// slice is the frame's backing storage; callers mutate it through SetColumn.
func (f *Frame) Column(name string) Series {
	return f.cols[name]
}

// SetColumn stores a numeric column, appending it to the column order when
// new. The series length must match the frame.
func (f *Frame) SetColumn(name string, s Series) {
	if len(s) != f.n {
		panic(fmt.Sprintf("timeseries: column %q length %d does not match frame length %d", name, len(s), f.n))
	}
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = s
}

// HasFlag reports whether the named boolean column exists.
func (f *Frame) HasFlag(name string) bool {
	_, ok := f.flags[name]
	return ok
}

// Flag returns the named boolean column, nil when absent.
func (f *Frame) Flag(name string) []bool {
	return f.flags[name]
}

// SetFlag stores a boolean indicator column.
func (f *Frame) SetFlag(name string, vals []bool) {
	if len(vals) != f.n {
		panic(fmt.Sprintf("timeseries: flag %q length %d does not match frame length %d", name, len(vals), f.n))
	}
	if _, ok := f.flags[name]; !ok {
		f.flagOrd = append(f.flagOrd, name)
	}
	f.flags[name] = vals
}

// FlagColumns returns boolean column names in insertion order.
func (f *Frame) FlagColumns() []string {
	return append([]string(nil), f.flagOrd...)
}

// HasTimestamp reports whether a timestamp column was supplied.
func (f *Frame) HasTimestamp() bool { return f.hasTime }

// Times returns the parsed time axis.
func (f *Frame) Times() []time.Time { return f.times }

// TimeValid reports whether row i carried a parseable timestamp.
func (f *Frame) TimeValid(i int) bool {
	return f.hasTime && f.timesOK[i]
}

// AllTimesValid reports whether every row has a parseable timestamp.
func (f *Frame) AllTimesValid() bool {
	if !f.hasTime {
		return false
	}
	for _, ok := range f.timesOK {
		if !ok {
			return false
		}
	}
	return true
}

// Select returns a new frame containing the given rows in the given order.
func (f *Frame) Select(idx []int) *Frame {
	out := NewFrame(len(idx))
	out.names = append([]string(nil), f.names...)
	for name, col := range f.cols {
		sub := make(Series, len(idx))
		for j, i := range idx {
			sub[j] = col[i]
		}
		out.cols[name] = sub
	}
	if f.hasTime {
		out.hasTime = true
		out.times = make([]time.Time, len(idx))
		out.timesOK = make([]bool, len(idx))
		for j, i := range idx {
			out.times[j] = f.times[i]
			out.timesOK[j] = f.timesOK[i]
		}
	}
	out.flagOrd = append([]string(nil), f.flagOrd...)
	for name, col := range f.flags {
		sub := make([]bool, len(idx))
		for j, i := range idx {
			sub[j] = col[i]
		}
		out.flags[name] = sub
	}
	return out
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	idx := make([]int, f.n)
	for i := range idx {
		idx[i] = i
	}
	return f.Select(idx)
}

// SortByTimestamp returns a copy sorted ascending by time, ties kept in
// original order. Rows with invalid timestamps sort first.
func (f *Frame) SortByTimestamp() *Frame {
	idx := make([]int, f.n)
	for i := range idx {
		idx[i] = i
	}
	if f.hasTime {
		sort.SliceStable(idx, func(a, b int) bool {
			return f.times[idx[a]].Before(f.times[idx[b]])
		})
	}
	return f.Select(idx)
}

// Records converts the frame back to row mappings for serialization. Missing
// numeric cells become nil so they survive JSON encoding.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, f.n)
	for i := 0; i < f.n; i++ {
		row := make(map[string]any, len(f.names)+len(f.flagOrd)+1)
		if f.hasTime && f.timesOK[i] {
			row[TimestampColumn] = f.times[i].UTC().Format(time.RFC3339Nano)
		}
		for _, name := range f.names {
			v := f.cols[name][i]
			if math.IsNaN(v) {
				row[name] = nil
			} else {
				row[name] = v
			}
		}
		for _, name := range f.flagOrd {
			row[name] = f.flags[name][i]
		}
		out[i] = row
	}
	return out
}
