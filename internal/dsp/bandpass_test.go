package dsp

import (
	"errors"
	"math"
	"testing"
)

const testSampleRate = 48000.0

func newTestFilter(t *testing.T) *BandPass {
	t.Helper()
	f, err := NewBandPass(testSampleRate, 2000, 8000, 4)
	if err != nil {
		t.Fatalf("NewBandPass: %v", err)
	}
	return f
}

func TestNewBandPassInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		low, hi  float64
		order    int
		wantErr  error
	}{
		{"low above high", 8000, 2000, 4, ErrInvalidCutoff},
		{"low equals high", 4000, 4000, 4, ErrInvalidCutoff},
		{"zero low cutoff", 0, 8000, 4, ErrInvalidCutoff},
		{"high at nyquist", 2000, 24000, 4, ErrCutoffNyquist},
		{"high above nyquist", 2000, 30000, 4, ErrCutoffNyquist},
		{"zero order", 2000, 8000, 0, ErrInvalidOrder},
	}
	for _, tt := range tests {
		_, err := NewBandPass(testSampleRate, tt.low, tt.hi, tt.order)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestBandPassSectionCount(t *testing.T) {
	for _, order := range []int{1, 2, 3, 4, 5} {
		f, err := NewBandPass(testSampleRate, 2000, 8000, order)
		if err != nil {
			t.Fatalf("order %d: %v", order, err)
		}
		if got := len(f.Sections()); got != order {
			t.Errorf("order %d: %d sections, want %d", order, got, order)
		}
	}
}

func TestBandPassEmptyInput(t *testing.T) {
	f := newTestFilter(t)
	if got := f.Process(nil); len(got) != 0 {
		t.Errorf("Process(nil) returned %d samples, want 0", len(got))
	}
	if got := f.Process([]float64{}); len(got) != 0 {
		t.Errorf("Process(empty) returned %d samples, want 0", len(got))
	}
}

func TestBandPassPreservesLength(t *testing.T) {
	f := newTestFilter(t)
	for _, n := range []int{1, 7, 480, 48000} {
		in := make([]float64, n)
		if got := len(f.Process(in)); got != n {
			t.Errorf("length %d in, %d out", n, got)
		}
	}
}

// steadyRMS measures RMS over the second half of the buffer, past the
// filter transient.
func steadyRMS(samples []float64) float64 {
	return RMS(samples[len(samples)/2:])
}

func sine(freq float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / testSampleRate)
	}
	return out
}

func TestBandPassPassesCenterFrequency(t *testing.T) {
	f := newTestFilter(t)
	center := math.Sqrt(2000.0 * 8000.0)
	in := sine(center, 48000)
	out := f.Process(in)

	inRMS := steadyRMS(in)
	outRMS := steadyRMS(out)
	if ratio := outRMS / inRMS; ratio < 0.85 || ratio > 1.15 {
		t.Errorf("center frequency gain = %v, want ~1", ratio)
	}
}

func TestBandPassRejectsOutOfBand(t *testing.T) {
	f := newTestFilter(t)
	for _, freq := range []float64{50, 100, 20000} {
		in := sine(freq, 48000)
		out := f.Process(in)
		if ratio := steadyRMS(out) / steadyRMS(in); ratio > 0.05 {
			t.Errorf("%v Hz leaked through with gain %v", freq, ratio)
		}
	}
}

func TestBandPassRejectsDC(t *testing.T) {
	f := newTestFilter(t)
	in := make([]float64, 48000)
	for i := range in {
		in[i] = 0.7
	}
	out := f.Process(in)
	if got := steadyRMS(out); got > 1e-6 {
		t.Errorf("DC input produced steady output RMS %v", got)
	}
}

func TestBandPassDeterministic(t *testing.T) {
	f := newTestFilter(t)
	in := sine(4000, 4800)
	a := f.Process(in)
	b := f.Process(in)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("outputs differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestBandPassStable(t *testing.T) {
	// All poles must be inside the unit circle.
	for _, order := range []int{1, 2, 3, 4, 6, 8} {
		f, err := NewBandPass(testSampleRate, 2000, 8000, order)
		if err != nil {
			t.Fatalf("order %d: %v", order, err)
		}
		for i, s := range f.Sections() {
			// Schur-Cohn conditions for a stable second-order polynomial.
			if math.Abs(s.A2) >= 1 || math.Abs(s.A1) >= 1+s.A2 {
				t.Errorf("order %d section %d unstable: a1=%v a2=%v", order, i, s.A1, s.A2)
			}
		}
	}
}
