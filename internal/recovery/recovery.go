// Package recovery runs the configured remediation command for a dead audio
// path. It implements the control loop's RecoveryActuator.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// commandTimeout bounds the remediation command. Commands that reboot the host
// never return within it; the timeout only prevents a wedged command from
// blocking the loop forever.
const commandTimeout = 60 * time.Second

// ErrNoCommand is returned when remediation is requested but no command is
// configured.
var ErrNoCommand = errors.New("no recovery command configured")

// Runner executes a shell command as the remediation action, e.g. a USB
// interface reboot followed by a host reboot. The command's outcome is logged
// but never re-checked; from the loop's point of view firing is terminal.
type Runner struct {
	command string
}

// NewRunner returns a Runner for the given shell command. An empty command
// disables remediation (Fire reports ErrNoCommand).
func NewRunner(command string) *Runner {
	return &Runner{command: command}
}

// Fire runs the remediation command. Callers may invoke it repeatedly; the
// runner performs no deduplication of its own.
func (r *Runner) Fire() error {
	if r.command == "" {
		return ErrNoCommand
	}

	slog.Error("firing recovery action", "command", r.command)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sh", "-c", r.command).CombinedOutput()
	if err != nil {
		if msg := util.ExtractLastError(string(out)); msg != "" {
			slog.Error("recovery command failed", "output", msg, "error", err)
		}
		return util.WrapError("run recovery command", err)
	}
	return nil
}
