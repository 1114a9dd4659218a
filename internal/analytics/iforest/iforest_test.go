package iforest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusterWithOutlier(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	for i := 0; i < n-1; i++ {
		x[i] = []float64{50 + rng.Float64(), 25 + rng.Float64()}
	}
	x[n-1] = []float64{500, 250}
	return x
}

func TestFitRejectsEmptyTrainingSet(t *testing.T) {
	f := New(Options{})
	assert.ErrorIs(t, f.Fit(nil), ErrEmptyTrainingSet)
	assert.ErrorIs(t, f.Fit([][]float64{{}}), ErrEmptyTrainingSet)
}

func TestScoreBeforeFit(t *testing.T) {
	f := New(Options{})
	_, err := f.Score([]float64{1, 2})
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = f.Predict([][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestOutlierScoresHigherThanInliers(t *testing.T) {
	x := clusterWithOutlier(100, 1)

	f := New(Options{Contamination: 0.05})
	require.NoError(t, f.Fit(x))

	outlierScore, err := f.Score(x[len(x)-1])
	require.NoError(t, err)

	sum := 0.0
	for _, row := range x[:len(x)-1] {
		s, err := f.Score(row)
		require.NoError(t, err)
		sum += s
	}
	meanInlier := sum / float64(len(x)-1)

	assert.Greater(t, outlierScore, meanInlier)
	assert.Greater(t, outlierScore, 0.6)
	assert.Less(t, meanInlier, 0.6)
}

func TestPredictFlagsOutlier(t *testing.T) {
	x := clusterWithOutlier(100, 2)

	f := New(Options{Contamination: 0.05})
	require.NoError(t, f.Fit(x))

	preds, err := f.Predict(x)
	require.NoError(t, err)
	require.Len(t, preds, len(x))

	assert.Equal(t, -1, preds[len(x)-1])
	flagged := 0
	for _, p := range preds {
		require.Contains(t, []int{-1, 1}, p)
		if p == -1 {
			flagged++
		}
	}
	assert.LessOrEqual(t, flagged, 10)
}

func TestZeroContaminationNeverFlags(t *testing.T) {
	x := clusterWithOutlier(50, 3)

	f := New(Options{})
	require.NoError(t, f.Fit(x))

	preds, err := f.Predict(x)
	require.NoError(t, err)
	for _, p := range preds {
		assert.Equal(t, 1, p)
	}
}

func TestFitIsReproducible(t *testing.T) {
	x := clusterWithOutlier(80, 4)

	a := New(Options{Contamination: 0.1, Seed: 99})
	b := New(Options{Contamination: 0.1, Seed: 99})
	require.NoError(t, a.Fit(x))
	require.NoError(t, b.Fit(x))

	for i, row := range x {
		sa, err := a.Score(row)
		require.NoError(t, err)
		sb, err := b.Score(row)
		require.NoError(t, err)
		assert.Equal(t, sa, sb, "row %d", i)
	}
}

func TestIdenticalRowsScoreEqually(t *testing.T) {
	x := make([][]float64, 20)
	for i := range x {
		x[i] = []float64{42, 7}
	}

	f := New(Options{})
	require.NoError(t, f.Fit(x))

	first, err := f.Score(x[0])
	require.NoError(t, err)
	last, err := f.Score(x[19])
	require.NoError(t, err)
	assert.Equal(t, first, last)
}

func TestAveragePathLength(t *testing.T) {
	assert.Zero(t, averagePathLength(0))
	assert.Zero(t, averagePathLength(1))
	assert.Equal(t, 1.0, averagePathLength(2))
	// c(n) grows with n and stays below log2-scale path depth bounds.
	assert.Greater(t, averagePathLength(256), averagePathLength(100))
	assert.InDelta(t, 10.24, averagePathLength(256), 0.2)
}
