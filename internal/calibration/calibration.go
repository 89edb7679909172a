// Package calibration derives gain control operating thresholds from a
// microphone's physical specifications.
//
// The transform is a pure function: it never touches running configuration.
// Persisting a derived profile is an explicit, separate step handled by the
// config layer.
package calibration

import "math"

// ReferencePressure is the acoustic reference pressure (20 µPa).
const ReferencePressure = 20e-6

// thresholdPrecision is the rounding factor for derived RMS thresholds.
const thresholdPrecision = 1e7

// Profile describes a microphone's published physical specifications.
type Profile struct {
	// SNRDB is the signal-to-noise ratio in dB.
	SNRDB float64 `json:"snr_db"`
	// SelfNoiseDBA is the intrinsic noise floor in dB-A.
	SelfNoiseDBA float64 `json:"self_noise_dba"`
	// ClippingSPLDB is the acoustic level at which the output saturates, in dB SPL.
	ClippingSPLDB float64 `json:"clipping_spl_db"`
	// SensitivityDB is the electrical output per unit pressure, in dB re 1 V/Pa.
	SensitivityDB float64 `json:"sensitivity_db"`
}

// Thresholds is the hysteresis band for gain adjustment. No adjustment is made
// while the measured RMS stays inside [NoiseLow, NoiseHigh].
type Thresholds struct {
	NoiseHigh float64 `json:"noise_high"`
	NoiseLow  float64 `json:"noise_low"`
}

// OperatingProfile is a complete set of gain control operating values:
// the threshold band plus the permitted gain range.
type OperatingProfile struct {
	Thresholds Thresholds `json:"thresholds"`
	MinGainDB  float64    `json:"min_gain_db"`
	MaxGainDB  float64    `json:"max_gain_db"`
}

// FullScale returns the acoustic full-scale amplitude for a microphone:
// the electrical amplitude corresponding to its clipping point.
func (p Profile) FullScale() float64 {
	return ReferencePressure *
		math.Pow(10, p.ClippingSPLDB/20) *
		math.Pow(10, p.SensitivityDB/20)
}

// Transform maps the base operating profile, expressed for the reference
// microphone described by defaults, onto the microphone described by user.
//
// Thresholds are re-expressed as fractions of the reference full scale,
// scaled to the user's full scale and by the relative signal-to-noise margin.
// Gain bounds shift by the sensitivity difference, which in dB trades off
// one-for-one against required electrical gain.
//
// Feeding the default profile back through reproduces base exactly, up to
// rounding.
func Transform(defaults Profile, base OperatingProfile, user Profile) OperatingProfile {
	defFullScale := defaults.FullScale()
	userFullScale := user.FullScale()
	snrRatio := user.SNRDB / defaults.SNRDB

	scale := func(threshold float64) float64 {
		fraction := threshold / defFullScale
		return roundThreshold(fraction * userFullScale * snrRatio)
	}

	offset := defaults.SensitivityDB - user.SensitivityDB

	return OperatingProfile{
		Thresholds: Thresholds{
			NoiseHigh: scale(base.Thresholds.NoiseHigh),
			NoiseLow:  scale(base.Thresholds.NoiseLow),
		},
		MinGainDB: math.Round(base.MinGainDB + offset),
		MaxGainDB: math.Round(base.MaxGainDB + offset),
	}
}

// roundThreshold rounds to seven decimal places, the precision the thresholds
// are stored and displayed with.
func roundThreshold(v float64) float64 {
	return math.Round(v*thresholdPrecision) / thresholdPrecision
}
