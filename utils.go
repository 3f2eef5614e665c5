package bo

import (
	"math"
	"time"

	"golang.org/x/exp/constraints"
)

//////
// Helper functions.
//////

// clamp limits v to [lo, hi].
func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// argMin returns the index of the smallest value, the first one on ties, or
// -1 for an empty slice.
func argMin[T constraints.Integer | constraints.Float](values []T) int {
	best := -1

	for i, v := range values {
		if best < 0 || v < values[best] {
			best = i
		}
	}

	return best
}

// cloneVector returns a copy of v. A nil input yields nil.
func cloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}

	out := make([]float64, len(v))
	copy(out, v)

	return out
}

// squaredDistance returns the squared Euclidean distance between a and b,
// which must have the same length.
func squaredDistance(a, b []float64) float64 {
	var sum float64

	for i := range a {
		diff := a[i] - b[i]

		sum += diff * diff
	}

	return sum
}

// allFinite reports whether every value of v is neither NaN nor infinite.
func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}

	return true
}

// meanStd returns the mean and the (population) standard deviation of v.
// A zero spread is reported as 1 so that the result can always be used as a
// divisor. Both are computed without overflow for any finite input.
func meanStd(v []float64) (mean, std float64) {
	if len(v) == 0 {
		return 0, 1
	}

	// Running mean: the plain sum overflows for values near MaxFloat64.
	for i, x := range v {
		mean += (x - mean) / float64(i+1)
	}

	var scale float64
	for _, x := range v {
		scale = math.Max(scale, math.Abs(x-mean))
	}

	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return mean, 1
	}

	for _, x := range v {
		d := (x - mean) / scale

		std += d * d
	}

	std = scale * math.Sqrt(std/float64(len(v)))
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		std = 1
	}

	return mean, std
}

// timed runs f and reports how long it took.
//
// Important notes:
// - Time measurement includes only the execution of f
// - Time is measured using time.Now() and time.Since()
func timed(f func() float64) (float64, time.Duration) {
	start := time.Now()

	v := f()

	return v, time.Since(start)
}
