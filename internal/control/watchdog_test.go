package control

import "testing"

const silenceThreshold = 1e-6

func TestWatchdogFiresAfterLimit(t *testing.T) {
	w := NewWatchdog(silenceThreshold, 3)

	if w.Update(1e-7) {
		t.Error("fired after 1 silent cycle")
	}
	if w.Update(1e-7) {
		t.Error("fired after 2 silent cycles")
	}
	if !w.Update(1e-7) {
		t.Error("did not fire after 3 silent cycles")
	}
}

func TestWatchdogSignalResetsCount(t *testing.T) {
	w := NewWatchdog(silenceThreshold, 3)

	w.Update(1e-7)
	w.Update(1e-7)
	if w.Update(0.005) {
		t.Error("fired on a cycle with signal")
	}
	if w.Count() != 0 {
		t.Errorf("count = %d after signal, want 0", w.Count())
	}
	// Firing is delayed by the reset: three more silent cycles needed.
	w.Update(1e-7)
	if !((!w.Update(1e-7)) && w.Update(1e-7)) {
		t.Error("firing not delayed after reset")
	}
}

func TestWatchdogKeepsFiringWhileSilent(t *testing.T) {
	w := NewWatchdog(silenceThreshold, 3)
	for i := 0; i < 3; i++ {
		w.Update(0)
	}
	// No suppression once the limit is reached; the counter keeps growing.
	for i := 4; i <= 10; i++ {
		if !w.Update(0) {
			t.Fatalf("stopped firing at cycle %d", i)
		}
		if w.Count() != i {
			t.Fatalf("count = %d at cycle %d", w.Count(), i)
		}
	}
}

func TestWatchdogThresholdIsExclusive(t *testing.T) {
	w := NewWatchdog(silenceThreshold, 1)
	if w.Update(silenceThreshold) {
		t.Error("measurement equal to threshold counted as silence")
	}
	if !w.Update(silenceThreshold / 2) {
		t.Error("measurement below threshold not counted as silence")
	}
}

func TestWatchdogDefaultLimit(t *testing.T) {
	w := NewWatchdog(silenceThreshold, 0)
	if w.Limit() != DefaultSilenceLimit {
		t.Errorf("limit = %d, want %d", w.Limit(), DefaultSilenceLimit)
	}
}
