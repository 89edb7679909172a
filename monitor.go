package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-autogain/internal/config"
	"github.com/oszuidwest/zwfm-autogain/internal/dump"
	"github.com/oszuidwest/zwfm-autogain/internal/events"
	"github.com/oszuidwest/zwfm-autogain/internal/notify"
)

// LoopMonitor fans control loop callbacks out to the log, the event journal,
// the silence notifier and the evidence dumper. Callbacks run on the loop
// goroutine, so anything slow is pushed to a background goroutine here.
type LoopMonitor struct {
	cfg          *config.Config
	journal      *events.Logger
	notifier     *notify.SilenceNotifier
	dumper       *dump.Dumper
	silenceLimit int

	mu      sync.Mutex
	lastRMS float64
}

// NewLoopMonitor creates a monitor. journal and dumper may be nil.
func NewLoopMonitor(cfg *config.Config, journal *events.Logger, notifier *notify.SilenceNotifier, dumper *dump.Dumper, silenceLimit int) *LoopMonitor {
	return &LoopMonitor{
		cfg:          cfg,
		journal:      journal,
		notifier:     notifier,
		dumper:       dumper,
		silenceLimit: silenceLimit,
	}
}

// CycleMeasured records the measurement of a completed cycle.
func (m *LoopMonitor) CycleMeasured(rms, gain float64) {
	m.mu.Lock()
	m.lastRMS = rms
	m.mu.Unlock()

	slog.Debug("cycle measured", "rms", rms, "gain_db", gain)
}

// GainAdjusted journals a successful gain change.
func (m *LoopMonitor) GainAdjusted(previous, next float64) {
	m.mu.Lock()
	rms := m.lastRMS
	m.mu.Unlock()

	slog.Info("gain adjusted", "previous_db", previous, "next_db", next, "rms", rms)
	m.logEvent(func() error { return m.journal.LogGainAdjusted(previous, next, rms) })
}

// GainWriteFailed reports a rejected mixer write.
func (m *LoopMonitor) GainWriteFailed(target float64, err error) {
	slog.Error("gain write failed", "target_db", target, "error", err)
}

// CaptureFailed journals a skipped cycle.
func (m *LoopMonitor) CaptureFailed(err error) {
	slog.Error("audio capture failed", "error", err)
	m.logEvent(func() error { return m.journal.LogCaptureFailed(err.Error()) })
}

// RemediationDue fires the notification and evidence machinery for a confirmed
// no-signal episode. Called every cycle the condition persists; the notifier
// deduplicates per episode, the dump is taken once at the moment of
// confirmation.
func (m *LoopMonitor) RemediationDue(consecutive int, raw []float64) {
	m.mu.Lock()
	rms := m.lastRMS
	m.mu.Unlock()

	cfg := m.cfg.Snapshot()
	slog.Warn("no signal confirmed, remediation due",
		"consecutive", consecutive, "rms", rms, "threshold", cfg.SilenceThreshold)

	m.logEvent(func() error { return m.journal.LogNoSignal(rms, cfg.SilenceThreshold, consecutive) })
	m.logEvent(func() error { return m.journal.LogRemediation(consecutive, "") })

	if m.notifier != nil {
		m.notifier.SilenceConfirmed(rms, consecutive)
	}

	// One dump per episode, taken when the watchdog first trips.
	if m.dumper != nil && cfg.DumpEnabled && consecutive == m.silenceLimit && len(raw) > 0 {
		samples := make([]float64, len(raw))
		copy(samples, raw)
		go m.encodeAndUpload(&cfg, samples)
	}
}

// SignalRecovered closes out a no-signal episode.
func (m *LoopMonitor) SignalRecovered(silentCycles int) {
	m.mu.Lock()
	rms := m.lastRMS
	m.mu.Unlock()

	slog.Info("signal recovered", "silent_cycles", silentCycles, "rms", rms)
	m.logEvent(func() error { return m.journal.LogSignalRecovered(rms, silentCycles) })

	if m.notifier != nil {
		m.notifier.SignalRecovered(rms, silentCycles)
	}
}

// encodeAndUpload encodes the silent capture to MP3 and uploads it if S3 is
// configured. Runs off the loop goroutine.
func (m *LoopMonitor) encodeAndUpload(cfg *config.Snapshot, samples []float64) {
	result := m.dumper.Encode(samples, time.Now())
	if result.Error != nil {
		slog.Error("silence dump failed", "error", result.Error)
		return
	}

	if !cfg.HasS3() {
		return
	}

	s3cfg := &dump.S3Config{
		Endpoint:        cfg.S3Endpoint,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	}
	if err := dump.Upload(s3cfg, result); err != nil {
		slog.Error("silence dump upload failed", "file", result.Filename, "error", err)
	}
}

// logEvent runs a journal write, tolerating a nil journal.
func (m *LoopMonitor) logEvent(fn func() error) {
	if m.journal == nil {
		return
	}
	if err := fn(); err != nil {
		slog.Warn("event journal write failed", "error", err)
	}
}
