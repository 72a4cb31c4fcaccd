package analytics

import "math"

// welfordState accumulates running mean and variance of delay values
// using Welford's online algorithm, which is numerically stable and
// needs O(1) space regardless of batch size.
type welfordState struct {
	count int
	mean  float64
	m2    float64
}

// update adds one observation.
func (w *welfordState) update(value float64) {
	w.count++
	delta := value - w.mean
	w.mean += delta / float64(w.count)
	delta2 := value - w.mean
	w.m2 += delta * delta2
}

// stdDev returns the population standard deviation, 0 with fewer than
// two observations.
func (w *welfordState) stdDev() float64 {
	if w.count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}
