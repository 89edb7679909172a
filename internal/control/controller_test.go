package control

import (
	"errors"
	"math/rand"
	"testing"
)

func testGainConfig() GainConfig {
	return GainConfig{
		MinDB:     30,
		MaxDB:     38,
		StepDB:    3,
		NoiseHigh: 0.01,
		NoiseLow:  0.001,
	}
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(testGainConfig())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

func TestNewControllerInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GainConfig)
		wantErr error
	}{
		{"min above max", func(c *GainConfig) { c.MinDB = 40 }, ErrInvalidGainRange},
		{"min equals max", func(c *GainConfig) { c.MinDB = 38 }, ErrInvalidGainRange},
		{"zero step", func(c *GainConfig) { c.StepDB = 0 }, ErrInvalidGainStep},
		{"negative step", func(c *GainConfig) { c.StepDB = -3 }, ErrInvalidGainStep},
		{"low above high", func(c *GainConfig) { c.NoiseLow = 0.02 }, ErrInvalidThresholds},
		{"low equals high", func(c *GainConfig) { c.NoiseLow = 0.01 }, ErrInvalidThresholds},
	}
	for _, tt := range tests {
		cfg := testGainConfig()
		tt.mutate(&cfg)
		if _, err := NewController(cfg); !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestDecideLoudSignalStepsDown(t *testing.T) {
	c := newTestController(t)
	next, ok := c.Decide(0.02, 34)
	if !ok {
		t.Fatal("expected a decision for loud signal")
	}
	if next != 31 {
		t.Errorf("next = %v, want 31", next)
	}
}

func TestDecideQuietSignalStepsUpAndClamps(t *testing.T) {
	c := newTestController(t)
	next, ok := c.Decide(0.0001, 37)
	if !ok {
		t.Fatal("expected a decision for quiet signal")
	}
	// 37 + 3 = 40, clamped to the 38 dB ceiling.
	if next != 38 {
		t.Errorf("next = %v, want 38", next)
	}
}

func TestDecideLoudSignalClampsAtFloor(t *testing.T) {
	c := newTestController(t)
	next, ok := c.Decide(0.5, 31)
	if !ok {
		t.Fatal("expected a decision")
	}
	if next != 30 {
		t.Errorf("next = %v, want 30", next)
	}
}

func TestDecideDeadZoneIsInclusive(t *testing.T) {
	c := newTestController(t)
	for _, rms := range []float64{0.001, 0.005, 0.01} {
		if _, ok := c.Decide(rms, 34); ok {
			t.Errorf("rms %v: expected no decision inside dead zone", rms)
		}
	}
}

func TestDecideRepeatsAtBound(t *testing.T) {
	// At the bound the clamped value equals the current gain; the decision is
	// still returned because the actuator accepts idempotent repeats.
	c := newTestController(t)
	next, ok := c.Decide(0.5, 30)
	if !ok {
		t.Fatal("expected a decision at the floor")
	}
	if next != 30 {
		t.Errorf("next = %v, want 30", next)
	}
}

func TestDecideStaysWithinBoundsUnderAnySequence(t *testing.T) {
	c := newTestController(t)
	rng := rand.New(rand.NewSource(7))
	gain := c.InitialGain()
	for i := 0; i < 1000; i++ {
		rms := rng.Float64() * 0.05
		next, ok := c.Decide(rms, gain)
		if !ok {
			continue
		}
		if next < 30 || next > 38 {
			t.Fatalf("gain %v escaped [30, 38]", next)
		}
		gain = next
	}
}

func TestInitialGainIsFlooredMidpoint(t *testing.T) {
	c := newTestController(t)
	if got := c.InitialGain(); got != 34 {
		t.Errorf("InitialGain = %v, want 34", got)
	}

	odd, err := NewController(GainConfig{MinDB: 30, MaxDB: 37, StepDB: 3, NoiseHigh: 0.01, NoiseLow: 0.001})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if got := odd.InitialGain(); got != 33 {
		t.Errorf("InitialGain = %v, want 33", got)
	}
}
