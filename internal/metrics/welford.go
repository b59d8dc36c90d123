package metrics

import "math"

// DelayStats accumulates delay observations with Welford's online algorithm, so mean and
// standard deviation can be updated from stored aggregates without keeping every sample.
type DelayStats struct {
	Count int
	Mean  float64
	M2    float64
	// Max is the largest absolute delay seen, in seconds.
	Max int
}

// Observe adds one delay in seconds.
func (s *DelayStats) Observe(delaySeconds int) {
	s.Count++
	delta := float64(delaySeconds) - s.Mean
	s.Mean += delta / float64(s.Count)
	s.M2 += delta * (float64(delaySeconds) - s.Mean)

	abs := delaySeconds
	if abs < 0 {
		abs = -abs
	}
	if abs > s.Max {
		s.Max = abs
	}
}

// StdDev returns the population standard deviation, 0 with fewer than two observations.
func (s *DelayStats) StdDev() float64 {
	if s.Count < 2 {
		return 0
	}
	return math.Sqrt(s.M2 / float64(s.Count))
}
