package control

// DefaultSilenceLimit is the number of consecutive near-zero cycles before
// remediation is due.
const DefaultSilenceLimit = 3

// Watchdog tracks consecutive cycles of near-zero signal to distinguish a dead
// audio path from merely quiet audio; quiet audio is the controller's business,
// handled by the dead zone.
//
// The watchdog is owned by the control loop and is not safe for concurrent use.
type Watchdog struct {
	threshold float64
	limit     int
	count     int
}

// NewWatchdog returns a Watchdog firing after limit consecutive measurements
// below threshold. A limit below 1 falls back to DefaultSilenceLimit.
func NewWatchdog(threshold float64, limit int) *Watchdog {
	if limit < 1 {
		limit = DefaultSilenceLimit
	}
	return &Watchdog{threshold: threshold, limit: limit}
}

// Update feeds one measurement and reports whether remediation is due.
//
// The counter keeps incrementing without bound while silence persists, and
// Update keeps returning true on every call once the limit is reached; there
// is no one-shot suppression. A single measurement at or above the threshold
// resets the counter to zero.
func (w *Watchdog) Update(rms float64) bool {
	if rms < w.threshold {
		w.count++
	} else {
		w.count = 0
	}
	return w.count >= w.limit
}

// Count returns the current consecutive no-signal cycle count.
func (w *Watchdog) Count() int {
	return w.count
}

// Limit returns the configured firing limit.
func (w *Watchdog) Limit() int {
	return w.limit
}
