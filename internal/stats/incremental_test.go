package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchStats computes the reference two-pass statistics.
func batchStats(values []float64) (mean, variance float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	variance = sq / float64(len(values)-1)
	return mean, variance
}

func TestIncrementalStatisticsMatchesBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]float64, 10_000)
	for i := range values {
		values[i] = rng.NormFloat64()*3 + 100
	}

	var s IncrementalStatistics
	for _, v := range values {
		s.Update(v)
	}

	wantMean, wantVar := batchStats(values)
	require.Equal(t, int64(len(values)), s.Count())
	assert.InDelta(t, wantMean, s.Mean(), 1e-9)
	assert.InDelta(t, wantVar, s.Variance(), 1e-9)
	assert.InDelta(t, math.Sqrt(wantVar), s.StdDev(), 1e-9)
}

func TestIncrementalStatisticsMinMaxSum(t *testing.T) {
	var s IncrementalStatistics
	for _, v := range []float64{3, -7, 12, 0.5} {
		s.Update(v)
	}

	assert.Equal(t, -7.0, s.Min())
	assert.Equal(t, 12.0, s.Max())
	assert.InDelta(t, 8.5, s.Sum(), 1e-12)
}

func TestIncrementalStatisticsSmallSamples(t *testing.T) {
	var s IncrementalStatistics
	assert.Zero(t, s.Count())
	assert.Zero(t, s.Mean())
	assert.Zero(t, s.Variance())

	s.Update(5)
	assert.Equal(t, int64(1), s.Count())
	assert.Equal(t, 5.0, s.Mean())
	assert.Zero(t, s.Variance(), "variance needs two observations")
	assert.Equal(t, 5.0, s.Min())
	assert.Equal(t, 5.0, s.Max())
}

func TestIncrementalStatisticsReset(t *testing.T) {
	var s IncrementalStatistics
	s.Update(1)
	s.Update(2)

	s.Reset()
	assert.Zero(t, s.Count())
	assert.Zero(t, s.Mean())
	assert.Zero(t, s.Sum())
	assert.Zero(t, s.Min())
	assert.Zero(t, s.Max())
}
