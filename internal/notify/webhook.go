package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event            string  `json:"event"`
	RMSLevel         float64 `json:"rms_level,omitempty"`
	SilenceThreshold float64 `json:"silence_threshold,omitempty"`
	SilentCycles     int     `json:"silent_cycles,omitempty"`
	GainDB           float64 `json:"gain_db,omitempty"`
	Message          string  `json:"message,omitempty"`
	Timestamp        string  `json:"timestamp"`
}

// SendSilenceWebhook notifies the configured webhook that no signal was
// detected for enough consecutive cycles to trigger remediation.
func SendSilenceWebhook(webhookURL string, rms, threshold float64, silentCycles int) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:            "no_signal",
		RMSLevel:         rms,
		SilenceThreshold: threshold,
		SilentCycles:     silentCycles,
		Timestamp:        timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the configured webhook that the signal returned.
func SendRecoveryWebhook(webhookURL string, rms float64, silentCycles int) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:        "signal_recovered",
		RMSLevel:     rms,
		SilentCycles: silentCycles,
		Timestamp:    timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
