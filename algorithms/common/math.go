package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Shared numeric helpers used across algorithms, backed by gonum.

// Mean calculates the arithmetic mean of a slice
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sumSquares := 0.0
	for _, val := range data {
		sumSquares += val * val
	}

	return math.Sqrt(sumSquares / float64(len(data)))
}

// PeakNormalize scales data so its largest absolute value is 1.
// Degenerate input (no energy) is returned as an unchanged copy.
func PeakNormalize(data []float64) []float64 {
	normalized := make([]float64, len(data))
	copy(normalized, data)

	if len(data) == 0 {
		return normalized
	}

	peak := 0.0
	for _, val := range data {
		if abs := math.Abs(val); abs > peak {
			peak = abs
		}
	}

	if peak < 1e-12 {
		return normalized
	}

	floats.Scale(1.0/peak, normalized)
	return normalized
}

// HasNaN reports whether any element is NaN
func HasNaN(data []float64) bool {
	for _, val := range data {
		if math.IsNaN(val) {
			return true
		}
	}
	return false
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
