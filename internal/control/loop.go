package control

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-autogain/internal/dsp"
	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// AudioSource captures one fixed-duration mono buffer per call. A failed
// capture is reported as an error, never as a partial buffer.
type AudioSource interface {
	Capture(ctx context.Context) ([]float64, error)
}

// GainActuator reads and writes the hardware input gain. The hardware may
// clamp or reject values on its own; the loop never assumes a write took
// effect and re-reads the gain every cycle.
type GainActuator interface {
	ReadGain() (float64, error)
	WriteGain(db float64) error
}

// RecoveryActuator fires the remediation action for a dead audio path. The
// action is disruptive and its outcome is not observed by the loop.
type RecoveryActuator interface {
	Fire() error
}

// Conditioner band-limits a capture buffer before measurement.
type Conditioner interface {
	Process(in []float64) []float64
}

// Monitor receives loop lifecycle callbacks. Implementations must not block;
// the loop is single-threaded and a slow monitor stretches the cycle.
type Monitor interface {
	// CycleMeasured is called once per successful capture with the
	// band-limited RMS and the gain read for the cycle (NaN if the read failed).
	CycleMeasured(rms, gain float64)
	// GainAdjusted is called after a successful actuator write.
	GainAdjusted(previous, next float64)
	// GainWriteFailed is called when the actuator rejects a write.
	GainWriteFailed(target float64, err error)
	// CaptureFailed is called when a cycle is skipped due to a capture error.
	CaptureFailed(err error)
	// RemediationDue is called every cycle the watchdog reports remediation
	// due, with the raw capture of that cycle for evidence dumping.
	RemediationDue(consecutive int, raw []float64)
	// SignalRecovered is called when signal returns after remediation had
	// become due, with the length of the ended silence episode in cycles.
	SignalRecovered(silentCycles int)
}

// NopMonitor is a Monitor that ignores all callbacks.
type NopMonitor struct{}

func (NopMonitor) CycleMeasured(rms, gain float64)          {}
func (NopMonitor) GainAdjusted(previous, next float64)      {}
func (NopMonitor) GainWriteFailed(target float64, err error) {}
func (NopMonitor) CaptureFailed(err error)                  {}
func (NopMonitor) RemediationDue(consecutive int, raw []float64) {}
func (NopMonitor) SignalRecovered(silentCycles int)         {}

// LoopState represents the current state of the control loop.
type LoopState string

const (
	// StateStopped indicates the loop is not running.
	StateStopped LoopState = "stopped"
	// StateRunning indicates the loop is cycling.
	StateRunning LoopState = "running"
	// StateStopping indicates the loop is shutting down.
	StateStopping LoopState = "stopping"
)

// Sentinel errors for loop operations.
var (
	ErrAlreadyRunning = errors.New("control loop already running")
)

// Status is a point-in-time snapshot of the loop for the web interface.
type Status struct {
	State         LoopState `json:"state"`
	Cycle         int64     `json:"cycle"`
	LastRMS       float64   `json:"last_rms"`
	LastGainDB    float64   `json:"last_gain_db"`
	NoSignalCount int       `json:"no_signal_count"`
	Uptime        string    `json:"uptime,omitempty"`
}

// Loop sequences one control cycle after another: capture, condition, measure,
// watchdog update, gain decision, apply, sleep. It is the only stateful
// orchestrator; it owns the watchdog counter and the cycle cadence.
type Loop struct {
	source      AudioSource
	conditioner Conditioner
	controller  *Controller
	watchdog    *Watchdog
	gain        GainActuator
	recovery    RecoveryActuator
	monitor     Monitor
	interval    time.Duration

	mu        sync.RWMutex
	state     LoopState
	stopChan  chan struct{}
	done      chan struct{}
	startTime time.Time
	cycle     int64
	lastRMS   float64
	lastGain  float64

	remediationDue bool // silence episode reached the watchdog limit
}

// NewLoop assembles a control loop from its collaborators. A nil monitor is
// replaced with NopMonitor.
func NewLoop(source AudioSource, conditioner Conditioner, controller *Controller,
	watchdog *Watchdog, gain GainActuator, recovery RecoveryActuator,
	monitor Monitor, interval time.Duration) *Loop {
	if monitor == nil {
		monitor = NopMonitor{}
	}
	return &Loop{
		source:      source,
		conditioner: conditioner,
		controller:  controller,
		watchdog:    watchdog,
		gain:        gain,
		recovery:    recovery,
		monitor:     monitor,
		interval:    interval,
		state:       StateStopped,
	}
}

// Start initializes the actuator to the midpoint gain and begins cycling in a
// background goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	if l.state != StateStopped {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.state = StateRunning
	l.stopChan = make(chan struct{})
	l.done = make(chan struct{})
	l.startTime = time.Now()
	l.cycle = 0
	l.mu.Unlock()

	initial := l.controller.InitialGain()
	if err := l.gain.WriteGain(initial); err != nil {
		slog.Warn("failed to set initial gain", "gain_db", initial, "error", err)
	} else {
		slog.Info("initial gain set", "gain_db", initial)
	}

	go l.run()
	return nil
}

// Stop halts the loop and waits for the current cycle to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return
	}
	l.state = StateStopping
	close(l.stopChan)
	done := l.done
	l.mu.Unlock()

	<-done

	l.mu.Lock()
	l.state = StateStopped
	l.mu.Unlock()
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Status{
		State:         l.state,
		Cycle:         l.cycle,
		LastRMS:       l.lastRMS,
		LastGainDB:    l.lastGain,
		NoSignalCount: l.watchdog.Count(),
	}
	if l.state == StateRunning {
		s.Uptime = util.FormatDuration(time.Since(l.startTime).Milliseconds())
	}
	return s
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.runCycle()

		select {
		case <-l.stopChan:
			return
		case <-time.After(l.interval):
		}
	}
}

// runCycle performs one strictly ordered control cycle. No failure terminates
// the loop: capture errors skip the whole cycle, actuator read errors skip
// only the gain decision, and write errors are corrected naturally next cycle
// because the gain is re-read fresh.
func (l *Loop) runCycle() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-l.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	raw, err := l.source.Capture(ctx)
	if err != nil || len(raw) == 0 {
		if err == nil {
			err = errors.New("empty capture buffer")
		}
		// The watchdog counter is deliberately left unchanged: a capture
		// failure says nothing about the signal on the audio path.
		slog.Warn("no audio captured, retrying next cycle", "error", err)
		l.monitor.CaptureFailed(err)
		return
	}

	rms := dsp.RMS(l.conditioner.Process(raw))

	l.mu.Lock()
	silentBefore := l.watchdog.Count()
	due := l.watchdog.Update(rms)
	count := l.watchdog.Count()
	l.cycle++
	l.lastRMS = rms
	wasDue := l.remediationDue
	l.remediationDue = due
	l.mu.Unlock()

	switch {
	case due:
		slog.Error("no signal, remediation due", "count", count, "limit", l.watchdog.Limit())
		l.monitor.RemediationDue(count, raw)
		if err := l.recovery.Fire(); err != nil {
			slog.Error("remediation action failed", "error", err)
		}
	case count > 0:
		slog.Warn("no signal detected", "count", count, "limit", l.watchdog.Limit())
	case wasDue:
		slog.Info("signal recovered", "silent_cycles", silentBefore)
		l.monitor.SignalRecovered(silentBefore)
	}

	current, err := l.gain.ReadGain()
	if err != nil {
		slog.Warn("failed to read current gain, skipping adjustment", "error", err)
		l.monitor.CycleMeasured(rms, math.NaN())
		return
	}

	l.mu.Lock()
	l.lastGain = current
	l.mu.Unlock()

	slog.Info("cycle measured", "rms", rms, "gain_db", current)
	l.monitor.CycleMeasured(rms, current)

	next, ok := l.controller.Decide(rms, current)
	if !ok {
		return
	}

	if err := l.gain.WriteGain(next); err != nil {
		slog.Error("failed to set gain", "gain_db", next, "error", err)
		l.monitor.GainWriteFailed(next, err)
		return
	}

	l.mu.Lock()
	l.lastGain = next
	l.mu.Unlock()

	slog.Info("gain adjusted", "from_db", current, "to_db", next)
	l.monitor.GainAdjusted(current, next)
}
