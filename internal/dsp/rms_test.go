package dsp

import (
	"math"
	"math/rand"
	"testing"
)

func TestRMSEmptyInput(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]float64{}); got != 0 {
		t.Errorf("RMS(empty) = %v, want 0", got)
	}
}

func TestRMSKnownValues(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"single sample", []float64{0.5}, 0.5},
		{"constant", []float64{1, 1, 1, 1}, 1},
		{"alternating sign", []float64{1, -1, 1, -1}, 1},
		{"three-four-zero", []float64{3, 4, 0, 0, 0}, math.Sqrt(5)},
	}
	for _, tt := range tests {
		got := RMS(tt.samples)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: RMS = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRMSNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		samples := make([]float64, 1+rng.Intn(200))
		for i := range samples {
			samples[i] = rng.Float64()*2 - 1
		}
		if got := RMS(samples); got < 0 {
			t.Fatalf("RMS returned negative value %v", got)
		}
	}
}

func TestRMSPermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = rng.Float64()*2 - 1
	}
	want := RMS(samples)

	shuffled := make([]float64, len(samples))
	copy(shuffled, samples)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if got := RMS(shuffled); math.Abs(got-want) > 1e-9 {
		t.Errorf("RMS changed under permutation: %v vs %v", got, want)
	}
}

func TestRMSScalesLinearly(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	samples := make([]float64, 300)
	for i := range samples {
		samples[i] = rng.Float64()*2 - 1
	}
	base := RMS(samples)

	for _, k := range []float64{2, 0.5, -3, 0} {
		scaled := make([]float64, len(samples))
		for i, s := range samples {
			scaled[i] = k * s
		}
		want := math.Abs(k) * base
		if got := RMS(scaled); math.Abs(got-want) > 1e-9 {
			t.Errorf("RMS(%v*x) = %v, want %v", k, got, want)
		}
	}
}
