// Package dsp provides the signal conditioning and level measurement used by
// the gain control loop: a Butterworth band-pass filter in cascaded
// second-order sections and an RMS level meter.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// Sentinel errors for filter configuration.
var (
	ErrInvalidCutoff = errors.New("low cutoff must be positive and below high cutoff")
	ErrCutoffNyquist = errors.New("cutoff frequency must be below half the sample rate")
	ErrInvalidOrder  = errors.New("filter order must be at least 1")
)

// Section is a single second-order filter section (biquad) with the
// denominator normalized so a0 == 1.
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// BandPass is a causal Butterworth band-pass filter realized as a cascade of
// second-order sections. Coefficients depend only on the configuration and are
// computed once. Each Process call filters an independent buffer from zero
// initial conditions, so the filter itself is safe for concurrent use.
type BandPass struct {
	sections []Section
}

// NewBandPass designs a band-pass filter of the given order for the target
// band [lowCut, highCut] Hz at the given sample rate. Configuration errors are
// reported here, once, so callers can validate at startup.
func NewBandPass(sampleRate, lowCut, highCut float64, order int) (*BandPass, error) {
	if order < 1 {
		return nil, ErrInvalidOrder
	}
	if lowCut <= 0 || lowCut >= highCut {
		return nil, fmt.Errorf("%w: low=%g high=%g", ErrInvalidCutoff, lowCut, highCut)
	}
	if highCut >= sampleRate/2 {
		return nil, fmt.Errorf("%w: high=%g sample_rate=%g", ErrCutoffNyquist, highCut, sampleRate)
	}

	return &BandPass{sections: designSections(sampleRate, lowCut, highCut, order)}, nil
}

// Sections returns a copy of the designed filter sections.
func (f *BandPass) Sections() []Section {
	out := make([]Section, len(f.sections))
	copy(out, f.sections)
	return out
}

// Process filters the input and returns a conditioned buffer of equal length.
// Empty input yields empty output. The implementation is the transposed
// direct-form II update, run section by section.
func (f *BandPass) Process(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)

	for _, s := range f.sections {
		var z1, z2 float64
		for i, x := range out {
			y := s.B0*x + z1
			z1 = s.B1*x - s.A1*y + z2
			z2 = s.B2*x - s.A2*y
			out[i] = y
		}
	}
	return out
}

// designSections computes the cascade for a Butterworth band-pass.
//
// The analog low-pass prototype poles are transformed to the band-pass
// geometry, mapped into the z-domain with the bilinear transform, and grouped
// into conjugate pairs. Every section carries one zero at z=1 and one at z=-1
// (numerator 1 - z^-2); the overall gain is normalized to unity at the
// geometric center frequency and folded into the first section.
func designSections(fs, lowCut, highCut float64, order int) []Section {
	fs2 := 2 * fs

	// Prewarped band edges.
	wl := fs2 * math.Tan(math.Pi*lowCut/fs)
	wh := fs2 * math.Tan(math.Pi*highCut/fs)
	bw := wh - wl
	w0 := math.Sqrt(wl * wh)

	sections := make([]Section, 0, order)

	// Upper-half-plane prototype poles; each yields two band-pass poles whose
	// conjugates come from the mirrored prototype pole.
	for k := 1; k <= order/2; k++ {
		theta := math.Pi * float64(2*k-1) / float64(2*order)
		p := complex(-math.Sin(theta), math.Cos(theta))
		s1, s2 := bandpassRoots(p, bw, w0)
		sections = append(sections,
			sectionFromPolePair(bilinear(s1, fs2), cmplx.Conj(bilinear(s1, fs2))),
			sectionFromPolePair(bilinear(s2, fs2), cmplx.Conj(bilinear(s2, fs2))),
		)
	}

	// Odd orders contribute a real prototype pole at -1; its two band-pass
	// roots form a single section (conjugate pair or two real poles).
	if order%2 == 1 {
		s1, s2 := bandpassRoots(complex(-1, 0), bw, w0)
		sections = append(sections, sectionFromPolePair(bilinear(s1, fs2), bilinear(s2, fs2)))
	}

	// Normalize to unit gain at the center frequency.
	wc := 2 * math.Atan(w0/fs2)
	g := 1 / cmplx.Abs(cascadeResponse(sections, wc))
	sections[0].B0 *= g
	sections[0].B2 *= g

	return sections
}

// bandpassRoots solves s^2 - p*bw*s + w0^2 = 0, the low-pass to band-pass
// transform of prototype pole p.
func bandpassRoots(p complex128, bw, w0 float64) (complex128, complex128) {
	b := complex(bw, 0) * p
	d := cmplx.Sqrt(b*b - complex(4*w0*w0, 0))
	return (b + d) / 2, (b - d) / 2
}

// bilinear maps an analog pole into the z-domain.
func bilinear(s complex128, fs2 float64) complex128 {
	return (complex(fs2, 0) + s) / (complex(fs2, 0) - s)
}

// sectionFromPolePair builds a section with numerator 1 - z^-2 and the given
// z-domain pole pair. The pair must be self-conjugate so the coefficients are
// real.
func sectionFromPolePair(z1, z2 complex128) Section {
	return Section{
		B0: 1,
		B2: -1,
		A1: -real(z1 + z2),
		A2: real(z1 * z2),
	}
}

// cascadeResponse evaluates the cascade transfer function at digital
// frequency w (radians per sample).
func cascadeResponse(sections []Section, w float64) complex128 {
	zInv := cmplx.Exp(complex(0, -w))
	h := complex(1, 0)
	for _, s := range sections {
		num := complex(s.B0, 0) + complex(s.B1, 0)*zInv + complex(s.B2, 0)*zInv*zInv
		den := complex(1, 0) + complex(s.A1, 0)*zInv + complex(s.A2, 0)*zInv*zInv
		h *= num / den
	}
	return h
}
