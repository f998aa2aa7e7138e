package analysis

import (
	"fmt"
	"math"
)

// Duration computes clip length in seconds from a sample count and
// sample rate. Invalid input (non-positive rate, negative count, NaN)
// yields 0.0.
func Duration(sampleCount, sampleRate int) float64 {
	if sampleCount <= 0 || sampleRate <= 0 {
		return 0.0
	}

	seconds := float64(sampleCount) / float64(sampleRate)
	if math.IsNaN(seconds) || seconds < 0 {
		return 0.0
	}

	return seconds
}

// FormatDuration renders seconds as "mm:ss", rounded to the nearest
// whole second. The minutes field is unbounded (no modulo at the hour),
// the seconds field is always two digits. Invalid input yields "00:00".
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "00:00"
	}

	total := int(math.Round(seconds))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
