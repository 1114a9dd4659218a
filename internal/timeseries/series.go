package timeseries

import (
	"math"
	"sort"
)

// Series is a single numeric column. Missing values are represented as NaN,
// and every statistic skips them.
type Series []float64

// NewSeries returns a series of length n with every value missing.
func NewSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// Clone returns an independent copy.
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// CountValid returns the number of non-missing values.
func (s Series) CountValid() int {
	n := 0
	for _, v := range s {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// HasMissing reports whether any value is missing.
func (s Series) HasMissing() bool {
	for _, v := range s {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Sum returns the sum of non-missing values.
func (s Series) Sum() float64 {
	total := 0.0
	for _, v := range s {
		if !math.IsNaN(v) {
			total += v
		}
	}
	return total
}

// Mean returns the mean of non-missing values, NaN if there are none.
func (s Series) Mean() float64 {
	count := s.CountValid()
	if count == 0 {
		return math.NaN()
	}
	return s.Sum() / float64(count)
}

// Std returns the sample standard deviation of non-missing values.
// Fewer than two valid samples yield NaN.
func (s Series) Std() float64 {
	count := s.CountValid()
	if count < 2 {
		return math.NaN()
	}
	mean := s.Mean()
	var varianceSum float64
	for _, v := range s {
		if !math.IsNaN(v) {
			varianceSum += (v - mean) * (v - mean)
		}
	}
	return math.Sqrt(varianceSum / float64(count-1))
}

// Min returns the smallest non-missing value, NaN if there are none.
func (s Series) Min() float64 {
	min := math.NaN()
	for _, v := range s {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(min) || v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest non-missing value, NaN if there are none.
func (s Series) Max() float64 {
	max := math.NaN()
	for _, v := range s {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(max) || v > max {
			max = v
		}
	}
	return max
}

// First returns the first non-missing value, NaN if there are none.
func (s Series) First() float64 {
	for _, v := range s {
		if !math.IsNaN(v) {
			return v
		}
	}
	return math.NaN()
}

// Last returns the last non-missing value, NaN if there are none.
func (s Series) Last() float64 {
	for i := len(s) - 1; i >= 0; i-- {
		if !math.IsNaN(s[i]) {
			return s[i]
		}
	}
	return math.NaN()
}

// DistinctValid returns the number of distinct non-missing values.
func (s Series) DistinctValid() int {
	seen := make(map[float64]struct{}, len(s))
	for _, v := range s {
		if !math.IsNaN(v) {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// Quantile returns the q-quantile (q in [0,1]) of non-missing values using
// linear interpolation between order statistics. NaN when the series has no
// valid values.
func (s Series) Quantile(q float64) float64 {
	valid := make([]float64, 0, len(s))
	for _, v := range s {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	sort.Float64s(valid)
	if q <= 0 {
		return valid[0]
	}
	if q >= 1 {
		return valid[len(valid)-1]
	}
	pos := q * float64(len(valid)-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= len(valid) {
		return valid[lo]
	}
	return valid[lo] + frac*(valid[lo+1]-valid[lo])
}

// FillForward propagates the nearest preceding valid value into missing slots.
func (s Series) FillForward() Series {
	out := s.Clone()
	last := math.NaN()
	for i, v := range out {
		if math.IsNaN(v) {
			out[i] = last
		} else {
			last = v
		}
	}
	return out
}

// FillBackward propagates the nearest following valid value into missing slots.
func (s Series) FillBackward() Series {
	out := s.Clone()
	next := math.NaN()
	for i := len(out) - 1; i >= 0; i-- {
		if math.IsNaN(out[i]) {
			out[i] = next
		} else {
			next = out[i]
		}
	}
	return out
}

// Clip pulls values outside [lo, hi] to the nearest bound. Missing values
// stay missing.
func (s Series) Clip(lo, hi float64) Series {
	out := s.Clone()
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			out[i] = lo
		} else if v > hi {
			out[i] = hi
		}
	}
	return out
}

// Diff returns element-wise differences with the previous value. The first
// element has no predecessor and is missing.
func (s Series) Diff() Series {
	out := NewSeries(len(s))
	for i := 1; i < len(s); i++ {
		out[i] = s[i] - s[i-1]
	}
	return out
}

// CumSum returns the running sum of non-missing values. Missing inputs
// contribute zero and remain missing in the output.
func (s Series) CumSum() Series {
	out := NewSeries(len(s))
	total := 0.0
	for i, v := range s {
		if math.IsNaN(v) {
			continue
		}
		total += v
		out[i] = total
	}
	return out
}

// RollingMean computes the mean over a trailing window of up to window
// samples. Positions with fewer than minPeriods valid samples in the window
// are missing.
func (s Series) RollingMean(window, minPeriods int) Series {
	return s.rollingApply(window, minPeriods, func(vals []float64) float64 {
		return Series(vals).Mean()
	})
}

// RollingStd computes the sample standard deviation over a trailing window of
// up to window samples. A window with a single valid sample is missing
// because the sample variance is undefined there.
func (s Series) RollingStd(window, minPeriods int) Series {
	return s.rollingApply(window, minPeriods, func(vals []float64) float64 {
		return Series(vals).Std()
	})
}

func (s Series) rollingApply(window, minPeriods int, fn func([]float64) float64) Series {
	out := NewSeries(len(s))
	if window <= 0 {
		return out
	}
	for i := range s {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		win := s[start : i+1]
		if win.CountValid() < minPeriods {
			continue
		}
		out[i] = fn(win)
	}
	return out
}
