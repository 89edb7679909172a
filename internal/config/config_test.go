package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/oszuidwest/zwfm-autogain/internal/calibration"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autogain.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autogain.json")
	cfg := New(path)
	// A brand-new config has no source yet; validation is deferred until the
	// user fills the file in and the daemon restarts.
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config file to be created: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", snap.SampleRate, DefaultSampleRate)
	}
	if snap.NoiseHigh != DefaultNoiseHigh || snap.NoiseLow != DefaultNoiseLow {
		t.Errorf("thresholds = %g/%g, want %g/%g",
			snap.NoiseHigh, snap.NoiseLow, DefaultNoiseHigh, DefaultNoiseLow)
	}
	if snap.MinGainDB != DefaultMinGainDB || snap.MaxGainDB != DefaultMaxGainDB {
		t.Errorf("gain bounds = %g/%g, want %g/%g",
			snap.MinGainDB, snap.MaxGainDB, DefaultMinGainDB, DefaultMaxGainDB)
	}
	if snap.Reference != DefaultReferenceProfile {
		t.Errorf("Reference = %+v, want %+v", snap.Reference, DefaultReferenceProfile)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, `{
		"audio": {"source": "rtsp://example.com/studio", "sample_rate": 44100},
		"gain": {"min_db": 20, "max_db": 32, "step_db": 2},
		"watchdog": {"limit": 5}
	}`)

	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.Source != "rtsp://example.com/studio" {
		t.Errorf("Source = %q", snap.Source)
	}
	if snap.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", snap.SampleRate)
	}
	if snap.MinGainDB != 20 || snap.MaxGainDB != 32 || snap.GainStepDB != 2 {
		t.Errorf("gain = %g/%g step %g", snap.MinGainDB, snap.MaxGainDB, snap.GainStepDB)
	}
	if snap.SilenceLimit != 5 {
		t.Errorf("SilenceLimit = %d, want 5", snap.SilenceLimit)
	}
	// Unspecified sections still get defaults.
	if snap.LowCutHz != DefaultLowCutHz || snap.HighCutHz != DefaultHighCutHz {
		t.Errorf("filter band = %g-%g, want defaults", snap.LowCutHz, snap.HighCutHz)
	}
	if snap.MixerControl != DefaultMixerControl {
		t.Errorf("MixerControl = %q", snap.MixerControl)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"inverted filter band", `{
			"audio": {"source": "rtsp://x/y"},
			"filter": {"low_cut_hz": 9000, "high_cut_hz": 2000}
		}`},
		{"band above nyquist", `{
			"audio": {"source": "rtsp://x/y", "sample_rate": 8000},
			"filter": {"low_cut_hz": 2000, "high_cut_hz": 6000}
		}`},
		{"inverted gain range", `{
			"audio": {"source": "rtsp://x/y"},
			"gain": {"min_db": 40, "max_db": 30}
		}`},
		{"inverted thresholds", `{
			"audio": {"source": "rtsp://x/y"},
			"thresholds": {"noise_high": 0.001, "noise_low": 0.01}
		}`},
		{"silence threshold above noise low", `{
			"audio": {"source": "rtsp://x/y"},
			"watchdog": {"silence_threshold": 0.01}
		}`},
		{"missing source", `{"audio": {"sample_rate": 48000}}`},
		{"malformed json", `{"audio": `},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := New(writeConfigFile(t, tc.body))
			if err := cfg.Load(); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestApplyOperatingProfile(t *testing.T) {
	path := writeConfigFile(t, `{"audio": {"source": "rtsp://x/y"}}`)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	derived := calibration.OperatingProfile{
		Thresholds: calibration.Thresholds{NoiseHigh: 0.02, NoiseLow: 0.002},
		MinGainDB:  24,
		MaxGainDB:  32,
	}
	if err := cfg.ApplyOperatingProfile(derived); err != nil {
		t.Fatalf("ApplyOperatingProfile() error: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.NoiseHigh != 0.02 || snap.NoiseLow != 0.002 {
		t.Errorf("thresholds = %g/%g", snap.NoiseHigh, snap.NoiseLow)
	}
	if snap.MinGainDB != 24 || snap.MaxGainDB != 32 {
		t.Errorf("gain bounds = %g/%g", snap.MinGainDB, snap.MaxGainDB)
	}

	// Persisted to disk.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parse persisted config: %v", err)
	}
	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Snapshot(); got.NoiseHigh != 0.02 || got.MinGainDB != 24 {
		t.Errorf("reloaded = %g/%g", got.NoiseHigh, got.MinGainDB)
	}
}

func TestApplyOperatingProfileRejectsInverted(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "autogain.json"))
	bad := calibration.OperatingProfile{
		Thresholds: calibration.Thresholds{NoiseHigh: 0.001, NoiseLow: 0.01},
		MinGainDB:  30,
		MaxGainDB:  38,
	}
	if err := cfg.ApplyOperatingProfile(bad); err == nil {
		t.Error("expected error for inverted thresholds")
	}
	bad2 := calibration.OperatingProfile{
		Thresholds: calibration.Thresholds{NoiseHigh: 0.01, NoiseLow: 0.001},
		MinGainDB:  40,
		MaxGainDB:  30,
	}
	if err := cfg.ApplyOperatingProfile(bad2); err == nil {
		t.Error("expected error for inverted gain range")
	}
}

func TestOperatingProfileRoundTrip(t *testing.T) {
	path := writeConfigFile(t, `{"audio": {"source": "rtsp://x/y"}}`)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got := cfg.OperatingProfile()
	if got.Thresholds.NoiseHigh != DefaultNoiseHigh || got.MaxGainDB != DefaultMaxGainDB {
		t.Errorf("OperatingProfile() = %+v", got)
	}
}

func TestSettersPersist(t *testing.T) {
	path := writeConfigFile(t, `{"audio": {"source": "rtsp://x/y"}}`)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.SetWebhookURL("https://hooks.example.com/a"); err != nil {
		t.Fatalf("SetWebhookURL() error: %v", err)
	}
	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Snapshot().WebhookURL; got != "https://hooks.example.com/a" {
		t.Errorf("WebhookURL = %q", got)
	}
}

func TestSnapshotHelpers(t *testing.T) {
	s := Snapshot{}
	if s.HasWebhook() || s.HasGraph() || s.HasLogPath() || s.HasS3() {
		t.Error("empty snapshot should report nothing configured")
	}
	s.WebhookURL = "https://x"
	s.LogPath = "/var/log/autogain.log"
	s.S3Bucket = "b"
	s.S3AccessKeyID = "k"
	s.S3SecretAccessKey = "s"
	if !s.HasWebhook() || !s.HasLogPath() || !s.HasS3() {
		t.Error("configured channels not reported")
	}
	if s.HasGraph() {
		t.Error("partial graph config should not report configured")
	}
}
