// Package stats provides the small set of statistical primitives used by
// feature derivation and model evaluation. Standard deviation here is the
// sample standard deviation (n-1 divisor), matching the semantics of the
// execution-time stability feature.
package stats

import (
	"cmp"
	"math"
)

// Mean returns the arithmetic mean of values.
// Returns 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64

	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// SampleStdDev returns the sample standard deviation of values.
// Returns 0 for fewer than two samples.
func SampleStdDev(values []float64) float64 {
	count := len(values)
	if count < 2 {
		return 0
	}

	mean := Mean(values)

	var sumSq float64

	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}

	return math.Sqrt(sumSq / float64(count-1))
}

// Clamp restricts val to the range [lo, hi].
func Clamp[T cmp.Ordered](val, lo, hi T) T {
	return max(lo, min(val, hi))
}

// Ratio returns num/den, or 0 when den is zero.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}

	return num / den
}

// Sum returns the sum of all elements in values.
func Sum[T cmp.Ordered](values []T) T {
	var result T

	for _, v := range values {
		result += v
	}

	return result
}
