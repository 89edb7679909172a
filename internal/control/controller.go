// Package control implements the adaptive gain decision engine: the hysteretic
// gain controller, the silence watchdog and the control loop that sequences
// capture, conditioning, measurement and actuation.
package control

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for controller configuration.
var (
	ErrInvalidGainRange  = errors.New("minimum gain must be below maximum gain")
	ErrInvalidGainStep   = errors.New("gain step must be positive")
	ErrInvalidThresholds = errors.New("noise low threshold must be below noise high threshold")
)

// GainConfig holds the controller's operating values. It is read-only to the
// controller; a calibration produces a new config rather than mutating this one.
type GainConfig struct {
	MinDB  float64 // lower gain bound in dB
	MaxDB  float64 // upper gain bound in dB
	StepDB float64 // adjustment step in dB

	NoiseHigh float64 // RMS above this reduces gain
	NoiseLow  float64 // RMS below this raises gain
}

// Validate checks the config for consistency.
func (c GainConfig) Validate() error {
	if c.MinDB >= c.MaxDB {
		return fmt.Errorf("%w: min=%g max=%g", ErrInvalidGainRange, c.MinDB, c.MaxDB)
	}
	if c.StepDB <= 0 {
		return fmt.Errorf("%w: step=%g", ErrInvalidGainStep, c.StepDB)
	}
	if c.NoiseLow >= c.NoiseHigh {
		return fmt.Errorf("%w: low=%g high=%g", ErrInvalidThresholds, c.NoiseLow, c.NoiseHigh)
	}
	return nil
}

// Controller decides gain adjustments from level measurements. It holds no
// state beyond its configuration: the current gain is supplied fresh each
// cycle from the actuator, so out-of-band gain changes are always reacted to.
type Controller struct {
	cfg GainConfig
}

// NewController returns a Controller for the given config.
func NewController(cfg GainConfig) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg}, nil
}

// Decide returns the gain to apply for the given measurement, or ok=false when
// the measurement sits inside the dead zone and no actuator write is wanted.
//
// The stepped value is clamped to the configured bounds rather than rejected,
// and is returned even when it equals the current gain: the actuator accepts
// idempotent repeats.
func (c *Controller) Decide(rms, currentGain float64) (next float64, ok bool) {
	switch {
	case rms > c.cfg.NoiseHigh:
		return c.clamp(currentGain - c.cfg.StepDB), true
	case rms < c.cfg.NoiseLow:
		return c.clamp(currentGain + c.cfg.StepDB), true
	default:
		// Inside the hysteresis band; leaving the gain alone here is what
		// prevents oscillation around a single threshold.
		return 0, false
	}
}

// InitialGain returns the startup gain: the floor of the range midpoint.
func (c *Controller) InitialGain() float64 {
	return math.Floor((c.cfg.MinDB + c.cfg.MaxDB) / 2)
}

// Bounds returns the configured gain range.
func (c *Controller) Bounds() (minDB, maxDB float64) {
	return c.cfg.MinDB, c.cfg.MaxDB
}

// Thresholds returns the configured hysteresis band.
func (c *Controller) Thresholds() (noiseLow, noiseHigh float64) {
	return c.cfg.NoiseLow, c.cfg.NoiseHigh
}

func (c *Controller) clamp(gain float64) float64 {
	return math.Min(math.Max(gain, c.cfg.MinDB), c.cfg.MaxDB)
}
