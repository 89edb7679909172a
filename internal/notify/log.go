package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// SilenceLogEntry is one line in the notification log file.
type SilenceLogEntry struct {
	Timestamp        string  `json:"timestamp"`
	Event            string  `json:"event"`
	RMSLevel         float64 `json:"rms_level,omitempty"`
	SilenceThreshold float64 `json:"silence_threshold,omitempty"`
	SilentCycles     int     `json:"silent_cycles,omitempty"`
}

// LogSilenceStart records a confirmed no-signal condition.
func LogSilenceStart(logPath string, rms, threshold float64, silentCycles int) error {
	return appendLogEntry(logPath, &SilenceLogEntry{
		Timestamp:        timestampUTC(),
		Event:            "no_signal",
		RMSLevel:         rms,
		SilenceThreshold: threshold,
		SilentCycles:     silentCycles,
	})
}

// LogSilenceEnd records the return of the signal.
func LogSilenceEnd(logPath string, rms float64, silentCycles int) error {
	return appendLogEntry(logPath, &SilenceLogEntry{
		Timestamp:    timestampUTC(),
		Event:        "signal_recovered",
		RMSLevel:     rms,
		SilentCycles: silentCycles,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &SilenceLogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *SilenceLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
