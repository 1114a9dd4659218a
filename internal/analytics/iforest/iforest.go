// Package iforest implements isolation forests: an unsupervised
// outlier-scoring ensemble that isolates anomalies with random axis-aligned
// partitions. Points that isolate in few splits score high.
package iforest

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const (
	// DefaultTrees is the ensemble size.
	DefaultTrees = 100
	// DefaultSampleSize is the per-tree subsample size.
	DefaultSampleSize = 256
	// DefaultSeed keeps fits reproducible across runs.
	DefaultSeed = 42

	eulerGamma = 0.5772156649015329
)

// ErrNotFitted is returned when scoring before Fit.
var ErrNotFitted = errors.New("iforest: forest is not fitted")

// ErrEmptyTrainingSet is returned when Fit receives no rows or no features.
var ErrEmptyTrainingSet = errors.New("iforest: empty training set")

// Options configure a forest. Zero values fall back to defaults.
type Options struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

// Forest is a fitted isolation forest. Fit decides the anomaly decision
// threshold from the contamination rate: the expected fraction of outliers
// in the training data.
type Forest struct {
	opts       Options
	trees      []*node
	sampleSize int
	threshold  float64
	fitted     bool
}

type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int
}

// New returns an unfitted forest.
func New(opts Options) *Forest {
	if opts.Trees <= 0 {
		opts.Trees = DefaultTrees
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	return &Forest{opts: opts}
}

// Fitted reports whether the forest has been trained.
func (f *Forest) Fitted() bool { return f.fitted }

// Fit trains the ensemble on the feature matrix and derives the decision
// threshold as the (1 - contamination) quantile of the training scores.
// A contamination of zero produces a forest that never flags.
func (f *Forest) Fit(x [][]float64) error {
	if len(x) == 0 || len(x[0]) == 0 {
		return ErrEmptyTrainingSet
	}

	f.sampleSize = f.opts.SampleSize
	if f.sampleSize > len(x) {
		f.sampleSize = len(x)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(f.sampleSize) + 1)))

	rng := rand.New(rand.NewSource(f.opts.Seed))
	f.trees = make([]*node, f.opts.Trees)
	for t := range f.trees {
		perm := rng.Perm(len(x))
		sample := perm[:f.sampleSize]
		f.trees[t] = buildTree(x, sample, 0, heightLimit, rng)
	}
	f.fitted = true

	if f.opts.Contamination <= 0 {
		f.threshold = math.Inf(1)
		return nil
	}
	scores := make([]float64, len(x))
	for i, row := range x {
		scores[i], _ = f.Score(row)
	}
	f.threshold = quantile(scores, 1-f.opts.Contamination)
	return nil
}

func buildTree(x [][]float64, idx []int, depth, limit int, rng *rand.Rand) *node {
	if depth >= limit || len(idx) <= 1 {
		return &node{size: len(idx)}
	}

	// Only features with spread inside this partition can split it.
	dims := len(x[0])
	splittable := make([]int, 0, dims)
	for q := 0; q < dims; q++ {
		lo, hi := featureRange(x, idx, q)
		if hi > lo {
			splittable = append(splittable, q)
		}
	}
	if len(splittable) == 0 {
		return &node{size: len(idx)}
	}

	feature := splittable[rng.Intn(len(splittable))]
	lo, hi := featureRange(x, idx, feature)
	split := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, i := range idx {
		if x[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature: feature,
		split:   split,
		left:    buildTree(x, left, depth+1, limit, rng),
		right:   buildTree(x, right, depth+1, limit, rng),
	}
}

func featureRange(x [][]float64, idx []int, q int) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		v := x[i][q]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Score returns the anomaly score in (0, 1): near 1 for points that isolate
// quickly, near 0.5 for average points.
func (f *Forest) Score(row []float64) (float64, error) {
	if !f.fitted {
		return 0, ErrNotFitted
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	avgPath := total / float64(len(f.trees))
	return math.Pow(2, -avgPath/averagePathLength(f.sampleSize)), nil
}

// Predict scores each row against the decision threshold, returning -1 for
// anomalies and 1 for normal points, mirroring the conventional contract.
func (f *Forest) Predict(x [][]float64) ([]int, error) {
	if !f.fitted {
		return nil, ErrNotFitted
	}
	out := make([]int, len(x))
	for i, row := range x {
		score, err := f.Score(row)
		if err != nil {
			return nil, err
		}
		if score > f.threshold {
			out[i] = -1
		} else {
			out[i] = 1
		}
	}
	return out, nil
}

func pathLength(n *node, row []float64, depth int) float64 {
	if n.left == nil && n.right == nil {
		return float64(depth) + averagePathLength(n.size)
	}
	if row[n.feature] < n.split {
		return pathLength(n.left, row, depth+1)
	}
	return pathLength(n.right, row, depth+1)
}

// averagePathLength is the expected path length of an unsuccessful BST
// search over n points, the standard normalization term c(n).
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		h := math.Log(float64(n-1)) + eulerGamma
		return 2*h - 2*float64(n-1)/float64(n)
	}
}

func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
