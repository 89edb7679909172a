package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-autogain/internal/calibration"
	"github.com/oszuidwest/zwfm-autogain/internal/dump"
	"github.com/oszuidwest/zwfm-autogain/internal/events"
	"github.com/oszuidwest/zwfm-autogain/internal/notify"
	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// requestValidator validates incoming API request bodies.
var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON reads, parses and validates JSON from the request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if err := requestValidator.Struct(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return v, false
	}
	return v, true
}

// handleAPIStatus returns the loop status and current operating values.
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ffmpeg_available": s.ffmpegAvailable,
		"loop":             s.loop.Status(),
		"source":           cfg.Source,
		"mixer_control":    cfg.MixerControl,
		"filter": map[string]any{
			"low_cut_hz":  cfg.LowCutHz,
			"high_cut_hz": cfg.HighCutHz,
			"order":       cfg.Order,
		},
		"gain": map[string]any{
			"min_db":  cfg.MinGainDB,
			"max_db":  cfg.MaxGainDB,
			"step_db": cfg.GainStepDB,
		},
		"thresholds": map[string]any{
			"noise_high": cfg.NoiseHigh,
			"noise_low":  cfg.NoiseLow,
		},
		"watchdog": map[string]any{
			"silence_threshold": cfg.SilenceThreshold,
			"limit":             cfg.SilenceLimit,
		},
		"version": s.version.Info(),
	})
}

// handleAPIEvents returns the most recent journal entries, newest first.
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []events.Event{})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := events.ReadLast(s.journal.Path(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "read event journal: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// CalibrateRequest describes the microphone to derive operating values for.
type CalibrateRequest struct {
	SNRDB         float64 `json:"snr_db" validate:"required,gt=0,lte=130"`
	SelfNoiseDBA  float64 `json:"self_noise_dba" validate:"gte=0,lte=60"`
	ClippingSPLDB float64 `json:"clipping_spl_db" validate:"required,gt=60,lte=160"`
	SensitivityDB float64 `json:"sensitivity_db" validate:"required,lt=0,gte=-80"`
}

// profile converts the request into a calibration profile.
func (r *CalibrateRequest) profile() calibration.Profile {
	return calibration.Profile{
		SNRDB:         r.SNRDB,
		SelfNoiseDBA:  r.SelfNoiseDBA,
		ClippingSPLDB: r.ClippingSPLDB,
		SensitivityDB: r.SensitivityDB,
	}
}

// derive computes the operating profile for the requested microphone against
// the configured reference.
func (s *Server) derive(req *CalibrateRequest) calibration.OperatingProfile {
	snap := s.config.Snapshot()
	return calibration.Transform(snap.Reference, s.config.OperatingProfile(), req.profile())
}

// handleAPICalibrate previews derived operating values without persisting.
func (s *Server) handleAPICalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[CalibrateRequest](s, w, r)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, s.derive(&req))
}

// handleAPICalibrateApply derives and persists operating values. They take
// effect on the next daemon restart.
func (s *Server) handleAPICalibrateApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[CalibrateRequest](s, w, r)
	if !ok {
		return
	}

	derived := s.derive(&req)
	if err := s.config.ApplyOperatingProfile(derived); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("calibration applied",
		"noise_high", derived.Thresholds.NoiseHigh,
		"noise_low", derived.Thresholds.NoiseLow,
		"min_gain_db", derived.MinGainDB,
		"max_gain_db", derived.MaxGainDB)

	s.writeJSON(w, http.StatusOK, derived)
}

// SettingsUpdateRequest carries runtime-adjustable notification and dump
// settings. All fields are optional; zero values leave a setting unchanged
// except the booleans, which are applied as sent.
type SettingsUpdateRequest struct {
	WebhookURL *string `json:"webhook_url,omitempty" validate:"omitempty,url,max=2048"`
	LogPath    *string `json:"log_path,omitempty" validate:"omitempty,max=4096"`

	Email *struct {
		TenantID     string `json:"tenant_id" validate:"max=100"`
		ClientID     string `json:"client_id" validate:"max=100"`
		ClientSecret string `json:"client_secret" validate:"max=500"`
		FromAddress  string `json:"from_address" validate:"omitempty,email,max=254"`
		Recipients   string `json:"recipients" validate:"max=1000"`
	} `json:"email,omitempty"`

	DumpEnabled *bool `json:"dump_enabled,omitempty"`
	S3          *struct {
		Endpoint        string `json:"endpoint" validate:"max=2048"`
		Bucket          string `json:"bucket" validate:"max=63"`
		AccessKeyID     string `json:"access_key_id" validate:"max=128"`
		SecretAccessKey string `json:"secret_access_key" validate:"max=256"`
	} `json:"s3,omitempty"`
}

// handleAPISettings reads or updates notification and dump settings.
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := s.config.Snapshot()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"webhook_url": cfg.WebhookURL,
			"log_path":    cfg.LogPath,
			"email": map[string]string{
				"tenant_id":    cfg.GraphTenantID,
				"client_id":    cfg.GraphClientID,
				"from_address": cfg.GraphFromAddress,
				"recipients":   cfg.GraphRecipients,
				// client_secret intentionally omitted
			},
			"dump_enabled": cfg.DumpEnabled,
			"s3": map[string]string{
				"endpoint": cfg.S3Endpoint,
				"bucket":   cfg.S3Bucket,
			},
		})
	case http.MethodPut:
		req, ok := parseJSON[SettingsUpdateRequest](s, w, r)
		if !ok {
			return
		}
		if err := s.applySettings(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// applySettings persists the fields present in the request.
func (s *Server) applySettings(req *SettingsUpdateRequest) error {
	if req.WebhookURL != nil {
		if err := s.config.SetWebhookURL(*req.WebhookURL); err != nil {
			return err
		}
	}
	if req.LogPath != nil {
		if *req.LogPath != "" {
			if err := util.CheckPathWritable(filepath.Dir(*req.LogPath)); err != nil {
				return err
			}
		}
		if err := s.config.SetLogPath(*req.LogPath); err != nil {
			return err
		}
	}
	if req.Email != nil {
		if err := s.config.SetEmailConfig(req.Email.TenantID, req.Email.ClientID,
			req.Email.ClientSecret, req.Email.FromAddress, req.Email.Recipients); err != nil {
			return err
		}
	}
	if req.DumpEnabled != nil {
		if err := s.config.SetDumpEnabled(*req.DumpEnabled); err != nil {
			return err
		}
	}
	if req.S3 != nil {
		if err := s.config.SetS3Config(req.S3.Endpoint, req.S3.Bucket,
			req.S3.AccessKeyID, req.S3.SecretAccessKey); err != nil {
			return err
		}
	}
	return nil
}

// handleTestWebhook sends a test notification to the configured webhook.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()
	if err := notify.SendTestWebhook(cfg.WebhookURL); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleTestLog writes a test entry to the notification log file.
func (s *Server) handleTestLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()
	if err := notify.WriteTestLog(cfg.LogPath); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleTestS3 verifies the dump upload credentials with a round trip.
func (s *Server) handleTestS3(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()
	s3cfg := &dump.S3Config{
		Endpoint:        cfg.S3Endpoint,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	}
	if err := dump.TestS3Connection(s3cfg); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
