package stats

import "math"

// IncrementalStatistics accumulates mean, variance, min, and max over a value
// stream in a single pass using Welford's method, keeping memory O(1)
// regardless of stream length. The zero value is ready to use.
//
// IncrementalStatistics is not safe for concurrent use; owners guard it with
// their own lock.
type IncrementalStatistics struct {
	n    int64
	mean float64
	m2   float64
	min  float64
	max  float64
	sum  float64
}

// Update folds one value into the accumulator.
func (s *IncrementalStatistics) Update(value float64) {
	s.n++
	delta := value - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (value - s.mean)
	s.sum += value

	if s.n == 1 {
		s.min = value
		s.max = value
		return
	}
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
}

// Count returns the number of observed values.
func (s *IncrementalStatistics) Count() int64 { return s.n }

// Mean returns the running mean, or 0 before the first observation.
func (s *IncrementalStatistics) Mean() float64 { return s.mean }

// Sum returns the running sum.
func (s *IncrementalStatistics) Sum() float64 { return s.sum }

// Variance returns the sample variance m2/(n-1), or 0 for fewer than two
// observations.
func (s *IncrementalStatistics) Variance() float64 {
	if s.n < 2 {
		return 0
	}
	return s.m2 / float64(s.n-1)
}

// StdDev returns the sample standard deviation.
func (s *IncrementalStatistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// Min returns the smallest observed value, or 0 before the first observation.
func (s *IncrementalStatistics) Min() float64 { return s.min }

// Max returns the largest observed value, or 0 before the first observation.
func (s *IncrementalStatistics) Max() float64 { return s.max }

// Reset returns the accumulator to its zero state.
func (s *IncrementalStatistics) Reset() {
	*s = IncrementalStatistics{}
}
