package alsa

import (
	"errors"
	"testing"
)

const amixerOutput = `Simple mixer control 'Line In 1 Gain',0
  Capabilities: volume
  Playback channels: Mono
  Limits: 0 - 69
  Mono: 34 [49%] [34.00dB]
`

func TestParseGainDB(t *testing.T) {
	got, err := ParseGainDB(amixerOutput)
	if err != nil {
		t.Fatalf("ParseGainDB: %v", err)
	}
	if got != 34 {
		t.Errorf("gain = %v, want 34", got)
	}
}

func TestParseGainDBNegative(t *testing.T) {
	got, err := ParseGainDB("Mono: 3 [4%] [-12.50dB] [on]")
	if err != nil {
		t.Fatalf("ParseGainDB: %v", err)
	}
	if got != -12.5 {
		t.Errorf("gain = %v, want -12.5", got)
	}
}

func TestParseGainDBNoValue(t *testing.T) {
	_, err := ParseGainDB("Mono: 34 [49%]")
	if !errors.Is(err, ErrNoGainValue) {
		t.Errorf("err = %v, want ErrNoGainValue", err)
	}
}
