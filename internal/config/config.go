// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-autogain/internal/calibration"
	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// Configuration defaults are used when values are not specified. The gain and
// threshold defaults describe the station's reference microphone; calibration
// derives replacements for other microphones.
const (
	DefaultWebPort     = 8080
	DefaultWebUsername = "admin"
	DefaultWebPassword = "autogain"

	DefaultSampleRate     = 48000
	DefaultCaptureSeconds = 5
	DefaultLowCutHz       = 2000
	DefaultHighCutHz      = 8000
	DefaultFilterOrder    = 4

	DefaultMixerControl = "Line In 1 Gain"
	DefaultMinGainDB    = 30.0
	DefaultMaxGainDB    = 38.0
	DefaultGainStepDB   = 3.0

	DefaultNoiseHigh = 0.01
	DefaultNoiseLow  = 0.001

	DefaultSilenceThreshold = 1e-6
	DefaultSilenceLimit     = 3

	DefaultCycleSeconds = 10
)

// DefaultReferenceProfile describes the microphone the default thresholds and
// gain bounds were tuned for.
var DefaultReferenceProfile = calibration.Profile{
	SNRDB:         80,
	SelfNoiseDBA:  14,
	ClippingSPLDB: 120,
	SensitivityDB: -28,
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"` // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// AudioConfig holds audio acquisition settings.
type AudioConfig struct {
	Source         string `json:"source" validate:"required,max=2048"` // RTSP stream URL
	SampleRate     int    `json:"sample_rate" validate:"omitempty,gte=8000,lte=192000"`
	CaptureSeconds int    `json:"capture_seconds" validate:"omitempty,gte=1,lte=60"`
}

// FilterConfig holds the band-pass settings for signal conditioning.
type FilterConfig struct {
	LowCutHz  float64 `json:"low_cut_hz" validate:"omitempty,gt=0"`
	HighCutHz float64 `json:"high_cut_hz" validate:"omitempty,gt=0"`
	Order     int     `json:"order" validate:"omitempty,gte=1,lte=12"`
}

// GainConfig holds the mixer control and the permitted gain range.
type GainConfig struct {
	MixerControl string  `json:"mixer_control" validate:"omitempty,max=100"`
	MinDB        float64 `json:"min_db"`
	MaxDB        float64 `json:"max_db"`
	StepDB       float64 `json:"step_db" validate:"omitempty,gt=0"`
}

// ThresholdsConfig holds the hysteresis band for gain adjustment.
type ThresholdsConfig struct {
	NoiseHigh float64 `json:"noise_high" validate:"omitempty,gt=0"`
	NoiseLow  float64 `json:"noise_low" validate:"omitempty,gt=0"`
}

// WatchdogConfig holds no-signal detection and remediation settings.
type WatchdogConfig struct {
	SilenceThreshold float64 `json:"silence_threshold" validate:"omitempty,gt=0"`
	Limit            int     `json:"limit" validate:"omitempty,gte=1,lte=1000"`
	RecoveryCommand  string  `json:"recovery_command" validate:"omitempty,max=1024"`
}

// LoopConfig holds the control loop cadence.
type LoopConfig struct {
	IntervalSeconds int `json:"interval_seconds" validate:"omitempty,gte=1,lte=3600"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"`
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Log     LogConfig     `json:"log"`
	Email   EmailConfig   `json:"email"`
}

// DumpConfig holds silence evidence dump settings.
type DumpConfig struct {
	Enabled           bool   `json:"enabled"`
	S3Endpoint        string `json:"s3_endpoint" validate:"omitempty,max=2048"`
	S3Bucket          string `json:"s3_bucket" validate:"omitempty,max=63"`
	S3AccessKeyID     string `json:"s3_access_key_id" validate:"omitempty,max=128"`
	S3SecretAccessKey string `json:"s3_secret_access_key" validate:"omitempty,max=256"`
}

// CalibrationConfig holds the reference microphone profile the default
// thresholds were derived for.
type CalibrationConfig struct {
	Reference calibration.Profile `json:"reference"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Audio         AudioConfig         `json:"audio"`
	Filter        FilterConfig        `json:"filter"`
	Gain          GainConfig          `json:"gain"`
	Thresholds    ThresholdsConfig    `json:"thresholds"`
	Watchdog      WatchdogConfig      `json:"watchdog"`
	Loop          LoopConfig          `json:"loop"`
	Notifications NotificationsConfig `json:"notifications"`
	Dump          DumpConfig          `json:"dump"`
	Calibration   CalibrationConfig   `json:"calibration"`

	mu       sync.RWMutex
	filePath string
}

// validate is the shared validator instance for configuration structs.
var validate = validator.New(validator.WithRequiredStructEnabled())

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Calibration: CalibrationConfig{Reference: DefaultReferenceProfile},
		filePath:    filePath,
	}
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.filePath
}

// Load reads config from file, creating a default one if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		c.applyDefaults()
		return c.saveLocked()
	}
	if err != nil {
		return util.WrapError("read config", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validateLocked()
}

// validateLocked checks all configuration fields for correctness. Violations
// are fatal at startup; the control loop never runs with an invalid config.
func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		return util.WrapError("validate config", err)
	}

	// Cross-field constraints the struct tags cannot express.
	if c.Filter.LowCutHz >= c.Filter.HighCutHz {
		return fmt.Errorf("invalid filter band: low_cut_hz %g must be below high_cut_hz %g",
			c.Filter.LowCutHz, c.Filter.HighCutHz)
	}
	if nyquist := float64(c.Audio.SampleRate) / 2; c.Filter.HighCutHz >= nyquist {
		return fmt.Errorf("invalid filter band: high_cut_hz %g must be below half the sample rate (%g)",
			c.Filter.HighCutHz, nyquist)
	}
	if c.Gain.MinDB >= c.Gain.MaxDB {
		return fmt.Errorf("invalid gain range: min_db %g must be below max_db %g",
			c.Gain.MinDB, c.Gain.MaxDB)
	}
	if c.Thresholds.NoiseLow >= c.Thresholds.NoiseHigh {
		return fmt.Errorf("invalid thresholds: noise_low %g must be below noise_high %g",
			c.Thresholds.NoiseLow, c.Thresholds.NoiseHigh)
	}
	if c.Watchdog.SilenceThreshold >= c.Thresholds.NoiseLow {
		return fmt.Errorf("invalid watchdog: silence_threshold %g must be below noise_low %g",
			c.Watchdog.SilenceThreshold, c.Thresholds.NoiseLow)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.CaptureSeconds == 0 {
		c.Audio.CaptureSeconds = DefaultCaptureSeconds
	}
	if c.Filter.LowCutHz == 0 {
		c.Filter.LowCutHz = DefaultLowCutHz
	}
	if c.Filter.HighCutHz == 0 {
		c.Filter.HighCutHz = DefaultHighCutHz
	}
	if c.Filter.Order == 0 {
		c.Filter.Order = DefaultFilterOrder
	}
	if c.Gain.MixerControl == "" {
		c.Gain.MixerControl = DefaultMixerControl
	}
	if c.Gain.MinDB == 0 && c.Gain.MaxDB == 0 {
		c.Gain.MinDB = DefaultMinGainDB
		c.Gain.MaxDB = DefaultMaxGainDB
	}
	if c.Gain.StepDB == 0 {
		c.Gain.StepDB = DefaultGainStepDB
	}
	if c.Thresholds.NoiseHigh == 0 {
		c.Thresholds.NoiseHigh = DefaultNoiseHigh
	}
	if c.Thresholds.NoiseLow == 0 {
		c.Thresholds.NoiseLow = DefaultNoiseLow
	}
	if c.Watchdog.SilenceThreshold == 0 {
		c.Watchdog.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.Watchdog.Limit == 0 {
		c.Watchdog.Limit = DefaultSilenceLimit
	}
	if c.Loop.IntervalSeconds == 0 {
		c.Loop.IntervalSeconds = DefaultCycleSeconds
	}
	if (c.Calibration.Reference == calibration.Profile{}) {
		c.Calibration.Reference = DefaultReferenceProfile
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Calibration persistence ---

// OperatingProfile returns the currently configured operating values as a
// calibration profile.
func (c *Config) OperatingProfile() calibration.OperatingProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return calibration.OperatingProfile{
		Thresholds: calibration.Thresholds{
			NoiseHigh: c.Thresholds.NoiseHigh,
			NoiseLow:  c.Thresholds.NoiseLow,
		},
		MinGainDB: c.Gain.MinDB,
		MaxGainDB: c.Gain.MaxDB,
	}
}

// ApplyOperatingProfile persists a derived operating profile as the new
// thresholds and gain bounds. This is the explicit persistence step after a
// calibration; the running loop picks the values up at next startup.
func (c *Config) ApplyOperatingProfile(p calibration.OperatingProfile) error {
	if p.Thresholds.NoiseLow >= p.Thresholds.NoiseHigh {
		return fmt.Errorf("invalid derived thresholds: low %g must be below high %g",
			p.Thresholds.NoiseLow, p.Thresholds.NoiseHigh)
	}
	if p.MinGainDB >= p.MaxGainDB {
		return fmt.Errorf("invalid derived gain range: min %g must be below max %g",
			p.MinGainDB, p.MaxGainDB)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Thresholds.NoiseHigh = p.Thresholds.NoiseHigh
	c.Thresholds.NoiseLow = p.Thresholds.NoiseLow
	c.Gain.MinDB = p.MinGainDB
	c.Gain.MaxDB = p.MaxGainDB
	return c.saveLocked()
}

// --- Setters for runtime-adjustable settings ---

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the notification log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetEmailConfig updates all Graph email fields and saves the configuration.
func (c *Config) SetEmailConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// SetDumpEnabled toggles silence evidence dumps and saves the configuration.
func (c *Config) SetDumpEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Dump.Enabled = enabled
	return c.saveLocked()
}

// SetS3Config updates the dump upload credentials and saves the configuration.
func (c *Config) SetS3Config(endpoint, bucket, accessKeyID, secretAccessKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Dump.S3Endpoint = endpoint
	c.Dump.S3Bucket = bucket
	c.Dump.S3AccessKeyID = accessKeyID
	c.Dump.S3SecretAccessKey = secretAccessKey
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	FFmpegPath  string

	// Audio
	Source         string
	SampleRate     int
	CaptureSeconds int

	// Filter
	LowCutHz  float64
	HighCutHz float64
	Order     int

	// Gain
	MixerControl string
	MinGainDB    float64
	MaxGainDB    float64
	GainStepDB   float64

	// Thresholds
	NoiseHigh float64
	NoiseLow  float64

	// Watchdog
	SilenceThreshold float64
	SilenceLimit     int
	RecoveryCommand  string

	// Loop
	CycleInterval time.Duration

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string

	// Dump
	DumpEnabled       bool
	S3Endpoint        string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Calibration
	Reference calibration.Profile
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		FFmpegPath:  c.System.FFmpegPath,

		Source:         c.Audio.Source,
		SampleRate:     c.Audio.SampleRate,
		CaptureSeconds: c.Audio.CaptureSeconds,

		LowCutHz:  c.Filter.LowCutHz,
		HighCutHz: c.Filter.HighCutHz,
		Order:     c.Filter.Order,

		MixerControl: c.Gain.MixerControl,
		MinGainDB:    c.Gain.MinDB,
		MaxGainDB:    c.Gain.MaxDB,
		GainStepDB:   c.Gain.StepDB,

		NoiseHigh: c.Thresholds.NoiseHigh,
		NoiseLow:  c.Thresholds.NoiseLow,

		SilenceThreshold: c.Watchdog.SilenceThreshold,
		SilenceLimit:     c.Watchdog.Limit,
		RecoveryCommand:  c.Watchdog.RecoveryCommand,

		CycleInterval: time.Duration(c.Loop.IntervalSeconds) * time.Second,

		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,

		DumpEnabled:       c.Dump.Enabled,
		S3Endpoint:        c.Dump.S3Endpoint,
		S3Bucket:          c.Dump.S3Bucket,
		S3AccessKeyID:     c.Dump.S3AccessKeyID,
		S3SecretAccessKey: c.Dump.S3SecretAccessKey,

		Reference: c.Calibration.Reference,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether a notification log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasS3 reports whether S3 dump upload is configured.
func (s *Snapshot) HasS3() bool {
	return s.S3Bucket != "" && s.S3AccessKeyID != "" && s.S3SecretAccessKey != ""
}
