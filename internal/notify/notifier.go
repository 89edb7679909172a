package notify

import (
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-autogain/internal/config"
	"github.com/oszuidwest/zwfm-autogain/internal/util"
)

// SilenceNotifier manages notifications for no-signal events. Each channel
// fires once per silence episode; recovery notifications are only sent for
// channels that announced the episode.
type SilenceNotifier struct {
	cfg *config.Config

	// mu protects the notification state fields below
	mu sync.Mutex

	// Track which notifications have been sent for the current episode
	webhookSent bool
	emailSent   bool
	logSent     bool

	// Cached Graph client for email notifications
	graphClient *GraphClient
}

// NewSilenceNotifier returns a SilenceNotifier configured with the given config.
func NewSilenceNotifier(cfg *config.Config) *SilenceNotifier {
	return &SilenceNotifier{cfg: cfg}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *SilenceNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *SilenceNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// SilenceConfirmed triggers notifications when the no-signal counter reaches
// its limit. The loop calls this every cycle the condition persists; each
// channel only fires on the first call of the episode.
func (n *SilenceNotifier) SilenceConfirmed(rms float64, silentCycles int) {
	cfg := n.cfg.Snapshot()

	n.trySend(&n.webhookSent, cfg.HasWebhook(), func() { n.sendSilenceWebhook(&cfg, rms, silentCycles) })
	n.trySend(&n.emailSent, cfg.HasGraph(), func() { n.sendSilenceEmail(&cfg, rms, silentCycles) })
	n.trySend(&n.logSent, cfg.HasLogPath(), func() { n.logSilenceStart(&cfg, rms, silentCycles) })
}

// trySend sends a notification if the condition is met and not already sent.
func (n *SilenceNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// SignalRecovered triggers recovery notifications when the signal returns
// after a confirmed episode. silentCycles is the length of the episode.
func (n *SilenceNotifier) SignalRecovered(rms float64, silentCycles int) {
	cfg := n.cfg.Snapshot()

	// Only send recovery notifications if we sent the corresponding start notification
	n.mu.Lock()
	shouldSendWebhookRecovery := n.webhookSent
	shouldSendEmailRecovery := n.emailSent
	shouldSendLogRecovery := n.logSent
	// Reset notification state for next episode
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()

	if shouldSendWebhookRecovery {
		go n.sendRecoveryWebhook(&cfg, rms, silentCycles)
	}

	if shouldSendEmailRecovery {
		go n.sendRecoveryEmail(&cfg, rms, silentCycles)
	}

	if shouldSendLogRecovery {
		go n.logSilenceEnd(&cfg, rms, silentCycles)
	}
}

// Reset clears the notification state.
func (n *SilenceNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()
}

func (n *SilenceNotifier) sendSilenceWebhook(cfg *config.Snapshot, rms float64, silentCycles int) {
	util.LogNotifyResult(
		func() error { return SendSilenceWebhook(cfg.WebhookURL, rms, cfg.SilenceThreshold, silentCycles) },
		"Silence webhook",
	)
}

func (n *SilenceNotifier) sendRecoveryWebhook(cfg *config.Snapshot, rms float64, silentCycles int) {
	util.LogNotifyResult(
		func() error { return SendRecoveryWebhook(cfg.WebhookURL, rms, silentCycles) },
		"Recovery webhook",
	)
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
func BuildGraphConfig(cfg *config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

func (n *SilenceNotifier) sendSilenceEmail(cfg *config.Snapshot, rms float64, silentCycles int) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error {
			return n.sendSilenceEmailWithClient(graphCfg, rms, cfg.SilenceThreshold, silentCycles)
		},
		"Silence email",
	)
}

func (n *SilenceNotifier) sendRecoveryEmail(cfg *config.Snapshot, rms float64, silentCycles int) {
	graphCfg := BuildGraphConfig(cfg)
	util.LogNotifyResult(
		func() error { return n.sendRecoveryEmailWithClient(graphCfg, rms, silentCycles) },
		"Recovery email",
	)
}

// sendEmail handles the common email sending infrastructure.
func (n *SilenceNotifier) sendEmail(cfg *GraphConfig, subject, body string) error {
	if !IsGraphConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}

// sendSilenceEmailWithClient sends a no-signal alert email using the cached Graph client.
func (n *SilenceNotifier) sendSilenceEmailWithClient(cfg *GraphConfig, rms, threshold float64, silentCycles int) error {
	subject := "[ALERT] No Signal Detected - " + AppName
	body := fmt.Sprintf(
		"No microphone signal detected by the automatic gain controller.\n\n"+
			"RMS level:     %.2e\n"+
			"Threshold:     %.2e\n"+
			"Silent cycles: %d\n"+
			"Time:          %s\n\n"+
			"Remediation has been triggered. Please check the microphone and capture chain.",
		rms, threshold, silentCycles, util.HumanTime(),
	)
	return n.sendEmail(cfg, subject, body)
}

// sendRecoveryEmailWithClient sends a recovery email using the cached Graph client.
func (n *SilenceNotifier) sendRecoveryEmailWithClient(cfg *GraphConfig, rms float64, silentCycles int) error {
	subject := "[OK] Signal Recovered - " + AppName
	body := fmt.Sprintf(
		"Microphone signal recovered.\n\n"+
			"RMS level:      %.2e\n"+
			"Silence lasted: %d cycles\n"+
			"Time:           %s",
		rms, silentCycles, util.HumanTime(),
	)
	return n.sendEmail(cfg, subject, body)
}

func (n *SilenceNotifier) logSilenceStart(cfg *config.Snapshot, rms float64, silentCycles int) {
	util.LogNotifyResult(
		func() error { return LogSilenceStart(cfg.LogPath, rms, cfg.SilenceThreshold, silentCycles) },
		"Silence log",
	)
}

func (n *SilenceNotifier) logSilenceEnd(cfg *config.Snapshot, rms float64, silentCycles int) {
	util.LogNotifyResult(
		func() error { return LogSilenceEnd(cfg.LogPath, rms, silentCycles) },
		"Recovery log",
	)
}
