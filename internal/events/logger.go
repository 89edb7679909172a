// Package events provides a JSON lines journal of control loop events:
// gain adjustments, no-signal episodes, remediation runs, and capture errors.
package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of control loop event.
type EventType string

const (
	GainAdjusted    EventType = "gain_adjusted"
	NoSignal        EventType = "no_signal"
	Remediation     EventType = "remediation"
	SignalRecovered EventType = "signal_recovered"
	CaptureFailed   EventType = "capture_failed"
)

// Event represents a single journal entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// GainDetails contains gain adjustment details.
type GainDetails struct {
	PreviousDB float64 `json:"previous_db"`
	NextDB     float64 `json:"next_db"`
	RMSLevel   float64 `json:"rms_level"`
}

// SilenceDetails contains no-signal episode details.
type SilenceDetails struct {
	RMSLevel     float64 `json:"rms_level"`
	Threshold    float64 `json:"threshold,omitempty"`
	SilentCycles int     `json:"silent_cycles,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// CaptureDetails contains capture failure details.
type CaptureDetails struct {
	Error string `json:"error"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	// Ensure directory exists
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	// Open file for appending
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the journal.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogGainAdjusted logs a gain change.
func (l *Logger) LogGainAdjusted(previousDB, nextDB, rms float64) error {
	return l.Log(&Event{
		Type:    GainAdjusted,
		Details: &GainDetails{PreviousDB: previousDB, NextDB: nextDB, RMSLevel: rms},
	})
}

// LogNoSignal logs a confirmed no-signal condition.
func (l *Logger) LogNoSignal(rms, threshold float64, silentCycles int) error {
	return l.Log(&Event{
		Type:    NoSignal,
		Details: &SilenceDetails{RMSLevel: rms, Threshold: threshold, SilentCycles: silentCycles},
	})
}

// LogRemediation logs a remediation command run. errMsg is empty on success.
func (l *Logger) LogRemediation(silentCycles int, errMsg string) error {
	return l.Log(&Event{
		Type:    Remediation,
		Details: &SilenceDetails{SilentCycles: silentCycles, Error: errMsg},
	})
}

// LogSignalRecovered logs the end of a no-signal episode.
func (l *Logger) LogSignalRecovered(rms float64, silentCycles int) error {
	return l.Log(&Event{
		Type:    SignalRecovered,
		Details: &SilenceDetails{RMSLevel: rms, SilentCycles: silentCycles},
	})
}

// LogCaptureFailed logs an audio capture failure.
func (l *Logger) LogCaptureFailed(errMsg string) error {
	return l.Log(&Event{
		Type:    CaptureFailed,
		Details: &CaptureDetails{Error: errMsg},
	})
}

// Close closes the journal file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the journal file.
func (l *Logger) Path() string {
	return l.filePath
}

// ReadLast reads the last n events from the journal, newest first.
func ReadLast(filePath string, n int) ([]Event, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	start := 0
	if len(lines) > n {
		start = len(lines) - n
	}
	lines = lines[start:]

	events := make([]Event, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	return events, nil
}
