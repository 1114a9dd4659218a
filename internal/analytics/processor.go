package analytics

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"bess-analytics/internal/timeseries"
)

// RequiredColumns are the telemetry columns every ingested table must carry.
var RequiredColumns = []string{
	timeseries.TimestampColumn,
	"voltage",
	"current",
	"temperature",
}

// clipColumns are clipped to robust IQR bounds during cleaning.
var clipColumns = []string{"voltage", "current", "temperature"}

// iqrClipFactor scales the interquartile range into clip bounds.
const iqrClipFactor = 3.0

// minDistinctForClip skips quartile clipping on near-constant columns where
// the quartiles are not meaningful.
const minDistinctForClip = 4

// ValidationReport captures the outcome of the per-table validation checks.
// It is purely derived from the table and never mutated after creation.
type ValidationReport struct {
	HasRequiredColumns bool `json:"has_required_columns"`
	HasValidTimestamps bool `json:"has_valid_timestamps"`
	HasValidRanges     bool `json:"has_valid_ranges"`
	HasDuplicates      bool `json:"has_duplicates"`
	HasMissingValues   bool `json:"has_missing_values"`
}

// OK reports whether the table passed every check.
func (r ValidationReport) OK() bool {
	return r.HasRequiredColumns && r.HasValidTimestamps && r.HasValidRanges &&
		!r.HasDuplicates && !r.HasMissingValues
}

// PipelineOptions control the stages run by ProcessPipeline.
type PipelineOptions struct {
	Clean        bool
	AddFeatures  bool
	ResampleFreq time.Duration
}

// DefaultPipelineOptions cleans and derives features without resampling.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{Clean: true, AddFeatures: true}
}

// Processor validates, cleans and enriches telemetry tables. It holds no
// state; every method takes the table in and hands a table out.
type Processor struct{}

// NewProcessor returns a processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Validate checks a table for required columns, timestamp well-formedness,
// value-range sanity, duplicates and missing values. It never mutates the
// input and never fails; malformed data is described, not rejected.
func (p *Processor) Validate(f *timeseries.Frame) ValidationReport {
	report := ValidationReport{
		HasRequiredColumns: len(missingRequired(f)) == 0,
		HasValidTimestamps: true,
		HasValidRanges:     true,
	}

	if f.HasTimestamp() {
		report.HasValidTimestamps = f.AllTimesValid()
	}

	report.HasDuplicates = hasFullDuplicates(f)
	report.HasMissingValues = hasMissingValues(f)

	if col := f.Column("voltage"); col != nil {
		for _, v := range col {
			if math.IsNaN(v) || v < 0 {
				report.HasValidRanges = false
				break
			}
		}
	}
	if report.HasValidRanges {
		if col := f.Column("temperature"); col != nil {
			for _, v := range col {
				if math.IsNaN(v) || v < -50 || v > 100 {
					report.HasValidRanges = false
					break
				}
			}
		}
	}
	return report
}

func missingRequired(f *timeseries.Frame) []string {
	var missing []string
	for _, name := range RequiredColumns {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func hasMissingValues(f *timeseries.Frame) bool {
	for _, name := range f.Columns() {
		if f.Column(name).HasMissing() {
			return true
		}
	}
	if f.HasTimestamp() && !f.AllTimesValid() {
		return true
	}
	return false
}

// hasFullDuplicates reports whether any two rows are identical across every
// column. Missing cells compare equal to missing cells.
func hasFullDuplicates(f *timeseries.Frame) bool {
	if f.Len() < 2 {
		return false
	}
	cols := f.Columns()
	seen := make(map[string]struct{}, f.Len())
	var b strings.Builder
	for i := 0; i < f.Len(); i++ {
		b.Reset()
		if f.HasTimestamp() {
			if f.TimeValid(i) {
				b.WriteString(strconv.FormatInt(f.Times()[i].UnixNano(), 10))
			} else {
				b.WriteString("invalid")
			}
			b.WriteByte('|')
		}
		for _, name := range cols {
			v := f.Column(name)[i]
			if math.IsNaN(v) {
				b.WriteString("nan")
			} else {
				b.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
			}
			b.WriteByte('|')
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}

// Clean deduplicates by timestamp (first occurrence wins), sorts
// chronologically, fills missing numeric values forward then backward, and
// clips voltage/current/temperature to robust IQR bounds. Row shape is only
// ever reduced, never grown.
func (p *Processor) Clean(f *timeseries.Frame) *timeseries.Frame {
	out := f.Clone()

	if out.HasTimestamp() {
		out = dropDuplicateTimestamps(out)
		out = out.SortByTimestamp()
	}

	for _, name := range out.Columns() {
		col := out.Column(name)
		if col.HasMissing() {
			out.SetColumn(name, col.FillForward().FillBackward())
		}
	}

	for _, name := range clipColumns {
		if !out.Has(name) {
			continue
		}
		col := out.Column(name)
		if col.CountValid() == 0 || col.DistinctValid() < minDistinctForClip {
			continue
		}
		q1 := col.Quantile(0.25)
		q3 := col.Quantile(0.75)
		iqr := q3 - q1
		out.SetColumn(name, col.Clip(q1-iqrClipFactor*iqr, q3+iqrClipFactor*iqr))
	}
	return out
}

func dropDuplicateTimestamps(f *timeseries.Frame) *timeseries.Frame {
	seen := make(map[int64]struct{}, f.Len())
	invalidSeen := false
	keep := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		if !f.TimeValid(i) {
			if invalidSeen {
				continue
			}
			invalidSeen = true
			keep = append(keep, i)
			continue
		}
		key := f.Times()[i].UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == f.Len() {
		return f
	}
	return f.Select(keep)
}

// DeriveFeatures appends computed columns: power, energy deltas with their
// running total, temperature rate of change, and rolling voltage volatility.
// Existing raw columns are never recomputed, so the operation is idempotent
// on its own output.
func (p *Processor) DeriveFeatures(f *timeseries.Frame) *timeseries.Frame {
	out := f.Clone()

	if !out.Has("power") && out.Has("voltage") && out.Has("current") {
		voltage := out.Column("voltage")
		current := out.Column("current")
		power := timeseries.NewSeries(out.Len())
		for i := range power {
			power[i] = voltage[i] * current[i]
		}
		out.SetColumn("power", power)
	}

	if out.Has("power") && out.HasTimestamp() {
		out = out.SortByTimestamp()
		power := out.Column("power")
		elapsed := elapsedSeconds(out)
		energyDelta := timeseries.NewSeries(out.Len())
		for i := range energyDelta {
			if math.IsNaN(elapsed[i]) {
				continue
			}
			// power [W] over elapsed hours, scaled to kWh.
			energyDelta[i] = power[i] * (elapsed[i] / 3600) / 1000
		}
		out.SetColumn("energy_delta", energyDelta)
		out.SetColumn("cumulative_energy", energyDelta.CumSum())
	}

	if out.Has("temperature") {
		tempDelta := out.Column("temperature").Diff()
		out.SetColumn("temp_delta", tempDelta)
		if out.HasTimestamp() {
			elapsed := elapsedSeconds(out)
			tempRate := timeseries.NewSeries(out.Len())
			for i := range tempRate {
				if math.IsNaN(tempDelta[i]) || math.IsNaN(elapsed[i]) || elapsed[i] == 0 {
					continue
				}
				tempRate[i] = tempDelta[i] / elapsed[i]
			}
			out.SetColumn("temp_rate", tempRate)
		}
	}

	if out.Has("voltage") {
		out.SetColumn("voltage_rolling_std", out.Column("voltage").RollingStd(10, 1))
	}
	return out
}

// elapsedSeconds returns per-row seconds since the previous sample, missing
// for the first row and around invalid timestamps.
func elapsedSeconds(f *timeseries.Frame) timeseries.Series {
	out := timeseries.NewSeries(f.Len())
	times := f.Times()
	for i := 1; i < f.Len(); i++ {
		if !f.TimeValid(i) || !f.TimeValid(i-1) {
			continue
		}
		out[i] = times[i].Sub(times[i-1]).Seconds()
	}
	return out
}

// Resample buckets the table to a fixed frequency, averaging every numeric
// column per bucket. Rows without a parseable timestamp are dropped. Flag
// columns do not survive resampling.
func (p *Processor) Resample(f *timeseries.Frame, freq time.Duration) (*timeseries.Frame, error) {
	if !f.HasTimestamp() {
		return nil, &MissingColumnError{Column: timeseries.TimestampColumn}
	}
	buckets, order := bucketRows(f, freq)

	out := timeseries.NewFrameWithTimes(order)
	for _, name := range f.Columns() {
		col := f.Column(name)
		agg := timeseries.NewSeries(len(order))
		for j, ts := range order {
			agg[j] = subSeries(col, buckets[ts]).Mean()
		}
		out.SetColumn(name, agg)
	}
	return out, nil
}

// aggSpec maps a source column to the statistics computed per period.
type aggSpec struct {
	column string
	stats  []string
}

var periodAggSpecs = []aggSpec{
	{column: "voltage", stats: []string{"mean", "min", "max", "std"}},
	{column: "current", stats: []string{"mean", "min", "max"}},
	{column: "temperature", stats: []string{"mean", "min", "max"}},
	{column: "power", stats: []string{"mean", "sum"}},
	{column: "soc", stats: []string{"mean", "min", "max"}},
}

// AggregateByPeriod rolls the table up into per-period statistics with
// flattened "<column>_<stat>" names.
func (p *Processor) AggregateByPeriod(f *timeseries.Frame, period time.Duration) (*timeseries.Frame, error) {
	if !f.HasTimestamp() {
		return nil, &MissingColumnError{Column: timeseries.TimestampColumn}
	}
	buckets, order := bucketRows(f, period)

	out := timeseries.NewFrameWithTimes(order)
	for _, spec := range periodAggSpecs {
		if !f.Has(spec.column) {
			continue
		}
		col := f.Column(spec.column)
		for _, stat := range spec.stats {
			agg := timeseries.NewSeries(len(order))
			for j, ts := range order {
				sub := subSeries(col, buckets[ts])
				switch stat {
				case "mean":
					agg[j] = sub.Mean()
				case "min":
					agg[j] = sub.Min()
				case "max":
					agg[j] = sub.Max()
				case "std":
					agg[j] = sub.Std()
				case "sum":
					agg[j] = sub.Sum()
				}
			}
			out.SetColumn(spec.column+"_"+stat, agg)
		}
	}
	return out, nil
}

func bucketRows(f *timeseries.Frame, freq time.Duration) (map[time.Time][]int, []time.Time) {
	buckets := make(map[time.Time][]int)
	for i := 0; i < f.Len(); i++ {
		if !f.TimeValid(i) {
			continue
		}
		key := f.Times()[i].Truncate(freq)
		buckets[key] = append(buckets[key], i)
	}
	order := make([]time.Time, 0, len(buckets))
	for ts := range buckets {
		order = append(order, ts)
	}
	sort.Slice(order, func(a, b int) bool { return order[a].Before(order[b]) })
	return buckets, order
}

func subSeries(col timeseries.Series, idx []int) timeseries.Series {
	sub := make(timeseries.Series, len(idx))
	for j, i := range idx {
		sub[j] = col[i]
	}
	return sub
}

// ProcessPipeline runs validate, clean, derive and optional resample in a
// fixed order. A table without the required columns is rejected before any
// stage runs.
func (p *Processor) ProcessPipeline(f *timeseries.Frame, opts PipelineOptions) (*timeseries.Frame, error) {
	if missing := missingRequired(f); len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	out := f
	if opts.Clean {
		out = p.Clean(out)
	}
	if opts.AddFeatures {
		out = p.DeriveFeatures(out)
	}
	if opts.ResampleFreq > 0 {
		resampled, err := p.Resample(out, opts.ResampleFreq)
		if err != nil {
			return nil, err
		}
		out = resampled
	}
	return out, nil
}
