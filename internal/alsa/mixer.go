// Package alsa controls an ALSA mixer element through the amixer command line
// tool. It implements the control loop's GainActuator.
package alsa

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// commandTimeout bounds a single amixer invocation.
const commandTimeout = 5 * time.Second

// gainPattern matches the dB value amixer reports, e.g. "[34.00dB]".
var gainPattern = regexp.MustCompile(`\[(-?\d+(\.\d+)?)dB\]`)

// ErrNoGainValue is returned when amixer output contains no dB value.
var ErrNoGainValue = errors.New("no dB value in amixer output")

// Mixer reads and writes the gain of a single ALSA mixer control. Hardware may
// clamp written values further; callers re-read to observe the effective gain.
type Mixer struct {
	binary  string
	control string
}

// NewMixer returns a Mixer for the named control (e.g. "Line In 1 Gain").
func NewMixer(control string) *Mixer {
	return &Mixer{binary: "amixer", control: control}
}

// ReadGain returns the control's current gain in dB.
func (m *Mixer) ReadGain() (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, m.binary, "sget", m.control).CombinedOutput()
	if err != nil {
		if msg := util.ExtractLastError(string(out)); msg != "" {
			return 0, fmt.Errorf("amixer sget: %s", msg)
		}
		return 0, util.WrapError("run amixer sget", err)
	}

	return ParseGainDB(string(out))
}

// WriteGain sets the control's gain, formatted as a whole dB value the way
// amixer expects it.
func (m *Mixer) WriteGain(db float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	value := fmt.Sprintf("%ddB", int(db))
	out, err := exec.CommandContext(ctx, m.binary, "sset", m.control, value).CombinedOutput()
	if err != nil {
		if msg := util.ExtractLastError(string(out)); msg != "" {
			return fmt.Errorf("amixer sset: %s", msg)
		}
		return util.WrapError("run amixer sset", err)
	}
	return nil
}

// ParseGainDB extracts the first dB value from amixer output.
func ParseGainDB(output string) (float64, error) {
	match := gainPattern.FindStringSubmatch(output)
	if match == nil {
		return 0, ErrNoGainValue
	}
	return strconv.ParseFloat(match[1], 64)
}
