package analytics

import (
	"math"
	"strings"

	"bess-analytics/internal/analytics/iforest"
	"bess-analytics/internal/timeseries"
)

const (
	// DefaultContamination is the expected outlier fraction.
	DefaultContamination = 0.05
	// DefaultZScoreThreshold flags values this many standard deviations out.
	DefaultZScoreThreshold = 3.0
	// DefaultChangeThreshold flags sample-to-sample jumps larger than this.
	DefaultChangeThreshold = 10.0
	// DefaultPatternWindow sizes the rolling window for pattern deviation.
	DefaultPatternWindow = 20
)

// Bounds is an operational (min, max) envelope for one column.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultThresholds are the stock operational envelopes for a 48 V pack.
func DefaultThresholds() map[string]Bounds {
	return map[string]Bounds{
		"voltage":     {Min: 40, Max: 60},
		"current":     {Min: -200, Max: 200},
		"temperature": {Min: 0, Max: 50},
	}
}

// Summary aggregates detection results over one table.
type Summary struct {
	TotalRecords      int            `json:"total_records"`
	AnomalyCount      int            `json:"anomaly_count"`
	AnomalyPercentage float64        `json:"anomaly_percentage"`
	AnomalyTypes      map[string]int `json:"anomaly_types"`
}

// Detector runs the anomaly-detection ensemble. The isolation forest is
// fitted once, on the first batch the detector sees, and reused until an
// explicit Refit; everything else is stateless. One detector serves one
// logical battery and is not safe for concurrent use.
type Detector struct {
	contamination float64
	seed          int64
	forest        *iforest.Forest
}

// NewDetector builds a detector for the given expected outlier fraction.
func NewDetector(contamination float64) (*Detector, error) {
	return NewDetectorWithSeed(contamination, iforest.DefaultSeed)
}

// NewDetectorWithSeed builds a detector with a fixed isolation-forest seed.
func NewDetectorWithSeed(contamination float64, seed int64) (*Detector, error) {
	if contamination < 0 || contamination > 0.5 || math.IsNaN(contamination) {
		return nil, ErrInvalidContamination
	}
	return &Detector{
		contamination: contamination,
		seed:          seed,
		forest:        iforest.New(iforest.Options{Contamination: contamination, Seed: seed}),
	}, nil
}

// IsFitted reports whether the isolation forest has been trained.
func (d *Detector) IsFitted() bool {
	return d.forest.Fitted()
}

// Refit discards the fitted model and trains a fresh forest on the given
// table, using the same contamination and seed.
func (d *Detector) Refit(f *timeseries.Frame, features []string) error {
	d.forest = iforest.New(iforest.Options{Contamination: d.contamination, Seed: d.seed})
	x := featureMatrix(f, features)
	return d.forest.Fit(x)
}

// DetectStatistical flags values whose |z-score| exceeds the threshold,
// appending "<col>_zscore" and "<col>_anomaly" per column plus the combined
// "is_anomaly" flag. A nil column list means every numeric column.
func (d *Detector) DetectStatistical(f *timeseries.Frame, columns []string, threshold float64) *timeseries.Frame {
	out := f.Clone()
	if columns == nil {
		columns = out.Columns()
	}

	var flagged []string
	for _, name := range columns {
		col := out.Column(name)
		if col == nil {
			continue
		}
		mean := col.Mean()
		std := col.Std()
		zscores := timeseries.NewSeries(out.Len())
		flags := make([]bool, out.Len())
		for i, v := range col {
			z := math.Abs(v-mean) / std
			zscores[i] = z
			flags[i] = z > threshold
		}
		out.SetColumn(name+"_zscore", zscores)
		out.SetFlag(name+"_anomaly", flags)
		flagged = append(flagged, name+"_anomaly")
	}

	out.SetFlag("is_anomaly", anyOf(out, flagged))
	return out
}

// DetectIsolationForest scores the table with the owned isolation forest,
// fitting it on first use. Missing feature values are imputed with the
// column mean. Appends the "isolation_forest_anomaly" flag.
func (d *Detector) DetectIsolationForest(f *timeseries.Frame, features []string) (*timeseries.Frame, error) {
	out := f.Clone()
	if features == nil {
		features = out.Columns()
	}
	x := featureMatrix(out, features)

	if !d.forest.Fitted() {
		if err := d.forest.Fit(x); err != nil {
			return nil, err
		}
	}
	preds, err := d.forest.Predict(x)
	if err != nil {
		return nil, err
	}

	flags := make([]bool, out.Len())
	for i, p := range preds {
		flags[i] = p == -1
	}
	out.SetFlag("isolation_forest_anomaly", flags)
	return out, nil
}

// featureMatrix builds a dense row-major matrix from the named columns,
// imputing missing cells with the column mean. All-missing columns impute
// to zero so the matrix stays finite.
func featureMatrix(f *timeseries.Frame, features []string) [][]float64 {
	cols := make([]timeseries.Series, 0, len(features))
	for _, name := range features {
		if col := f.Column(name); col != nil {
			cols = append(cols, col)
		}
	}
	means := make([]float64, len(cols))
	for j, col := range cols {
		m := col.Mean()
		if math.IsNaN(m) {
			m = 0
		}
		means[j] = m
	}

	x := make([][]float64, f.Len())
	for i := range x {
		row := make([]float64, len(cols))
		for j, col := range cols {
			v := col[i]
			if math.IsNaN(v) {
				v = means[j]
			}
			row[j] = v
		}
		x[i] = row
	}
	return x
}

// DetectThresholdViolations flags values outside per-column operational
// bounds, appending "<col>_violation" flags and the combined
// "has_violation". A nil map applies DefaultThresholds.
func (d *Detector) DetectThresholdViolations(f *timeseries.Frame, thresholds map[string]Bounds) *timeseries.Frame {
	out := f.Clone()
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}

	for name, bounds := range thresholds {
		col := out.Column(name)
		if col == nil {
			continue
		}
		flags := make([]bool, out.Len())
		for i, v := range col {
			flags[i] = v < bounds.Min || v > bounds.Max
		}
		out.SetFlag(name+"_violation", flags)
	}

	var violationCols []string
	for _, name := range out.FlagColumns() {
		if strings.HasSuffix(name, "_violation") {
			violationCols = append(violationCols, name)
		}
	}
	out.SetFlag("has_violation", anyOf(out, violationCols))
	return out
}

// DetectSuddenChanges flags sample-to-sample jumps in the named column
// larger than the threshold, appending "<col>_delta" and
// "<col>_sudden_change". An absent column is a hard error.
func (d *Detector) DetectSuddenChanges(f *timeseries.Frame, column string, changeThreshold float64) (*timeseries.Frame, error) {
	col := f.Column(column)
	if col == nil {
		return nil, &MissingColumnError{Column: column}
	}
	out := f.Clone()

	delta := col.Diff()
	flags := make([]bool, out.Len())
	for i, v := range delta {
		flags[i] = math.Abs(v) > changeThreshold
	}
	out.SetColumn(column+"_delta", delta)
	out.SetFlag(column+"_sudden_change", flags)
	return out, nil
}

// DetectPatternDeviations flags values straying more than three rolling
// standard deviations from the rolling mean, appending
// "<col>_rolling_mean", "<col>_rolling_std" and "<col>_pattern_deviation".
// Leading rows with an incomplete window have undefined rolling statistics
// and therefore stay unflagged. An absent column is a hard error.
func (d *Detector) DetectPatternDeviations(f *timeseries.Frame, column string, window int) (*timeseries.Frame, error) {
	col := f.Column(column)
	if col == nil {
		return nil, &MissingColumnError{Column: column}
	}
	if window <= 0 {
		window = DefaultPatternWindow
	}
	out := f.Clone()

	rollingMean := col.RollingMean(window, window)
	rollingStd := col.RollingStd(window, window)
	flags := make([]bool, out.Len())
	for i, v := range col {
		flags[i] = math.Abs(v-rollingMean[i]) > 3*rollingStd[i]
	}
	out.SetColumn(column+"_rolling_mean", rollingMean)
	out.SetColumn(column+"_rolling_std", rollingStd)
	out.SetFlag(column+"_pattern_deviation", flags)
	return out, nil
}

// suddenChangeColumns and patternColumns are the measurements the combined
// pass monitors when present.
var (
	suddenChangeColumns = []string{"temperature", "voltage"}
	patternColumns      = []string{"voltage", "current"}
)

// DetectAll runs the full ensemble: statistical z-score, isolation forest,
// threshold violations, sudden changes and pattern deviations, then the
// composite per-row anomaly_score (tripped indicators over total
// indicators, a density in [0,1], not a calibrated probability).
func (d *Detector) DetectAll(f *timeseries.Frame, thresholds map[string]Bounds) (*timeseries.Frame, error) {
	out := d.DetectStatistical(f, nil, DefaultZScoreThreshold)

	if numeric := out.Columns(); len(numeric) > 0 {
		scored, err := d.DetectIsolationForest(out, numeric)
		if err != nil {
			return nil, err
		}
		out = scored
	}

	out = d.DetectThresholdViolations(out, thresholds)

	var err error
	for _, name := range suddenChangeColumns {
		if out.Has(name) {
			if out, err = d.DetectSuddenChanges(out, name, DefaultChangeThreshold); err != nil {
				return nil, err
			}
		}
	}
	for _, name := range patternColumns {
		if out.Has(name) {
			if out, err = d.DetectPatternDeviations(out, name, DefaultPatternWindow); err != nil {
				return nil, err
			}
		}
	}

	indicators := indicatorColumns(out)
	if len(indicators) > 0 {
		score := timeseries.NewSeries(out.Len())
		for i := 0; i < out.Len(); i++ {
			tripped := 0
			for _, name := range indicators {
				if out.Flag(name)[i] {
					tripped++
				}
			}
			score[i] = float64(tripped) / float64(len(indicators))
		}
		out.SetColumn("anomaly_score", score)
	}
	return out, nil
}

func indicatorColumns(f *timeseries.Frame) []string {
	var out []string
	for _, name := range f.FlagColumns() {
		if strings.Contains(name, "anomaly") || strings.Contains(name, "violation") ||
			strings.Contains(name, "deviation") || strings.Contains(name, "change") {
			out = append(out, name)
		}
	}
	return out
}

// Summarize reports how many rows tripped the combined flag and each
// individual indicator.
func Summarize(f *timeseries.Frame) Summary {
	summary := Summary{
		TotalRecords: f.Len(),
		AnomalyTypes: make(map[string]int),
	}

	if flags := f.Flag("is_anomaly"); flags != nil {
		for _, v := range flags {
			if v {
				summary.AnomalyCount++
			}
		}
		if f.Len() > 0 {
			summary.AnomalyPercentage = float64(summary.AnomalyCount) / float64(f.Len()) * 100
		}
	}

	for _, name := range f.FlagColumns() {
		if !strings.Contains(name, "anomaly") && !strings.Contains(name, "violation") {
			continue
		}
		count := 0
		for _, v := range f.Flag(name) {
			if v {
				count++
			}
		}
		summary.AnomalyTypes[name] = count
	}
	return summary
}

func anyOf(f *timeseries.Frame, flagNames []string) []bool {
	out := make([]bool, f.Len())
	for _, name := range flagNames {
		flags := f.Flag(name)
		if flags == nil {
			continue
		}
		for i, v := range flags {
			out[i] = out[i] || v
		}
	}
	return out
}
