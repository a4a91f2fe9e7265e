package testutil

import "math"

// FirstAbove returns the index of the first sample whose magnitude exceeds
// threshold, or -1.
func FirstAbove(data []float64, threshold float64) int {
	for i, v := range data {
		if math.Abs(v) > threshold {
			return i
		}
	}
	return -1
}

// Peak returns the largest absolute sample value.
func Peak(data []float64) float64 {
	peak := 0.0
	for _, v := range data {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// Energy returns the sum of squared samples.
func Energy(data []float64) float64 {
	sum := 0.0
	for _, v := range data {
		sum += v * v
	}
	return sum
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}
