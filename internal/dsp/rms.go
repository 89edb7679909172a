package dsp

import "math"

// RMS returns the root-mean-square value of the samples.
// An empty input returns exactly 0.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}
