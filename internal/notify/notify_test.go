package notify

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseRecipients(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a@example.com", []string{"a@example.com"}},
		{"a@example.com, b@example.com", []string{"a@example.com", "b@example.com"}},
		{" a@example.com ,, ,b@example.com", []string{"a@example.com", "b@example.com"}},
		{"", nil},
		{" , ", nil},
	}
	for _, tc := range cases {
		if got := ParseRecipients(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseRecipients(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestGraphConfigValidation(t *testing.T) {
	valid := &GraphConfig{
		TenantID:     "12345678-1234-1234-1234-123456789abc",
		ClientID:     "87654321-4321-4321-4321-cba987654321",
		ClientSecret: "secret",
		FromAddress:  "alerts@example.com",
		Recipients:   "techniek@example.com",
	}
	if err := ValidateConfig(valid); err != nil {
		t.Errorf("ValidateConfig(valid) = %v", err)
	}
	if !IsGraphConfigured(valid) {
		t.Error("IsGraphConfigured(valid) = false")
	}

	noGUID := *valid
	noGUID.TenantID = "not-a-guid"
	if err := ValidateConfig(&noGUID); err == nil {
		t.Error("expected error for malformed tenant ID")
	}

	missing := *valid
	missing.ClientSecret = ""
	if IsGraphConfigured(&missing) {
		t.Error("IsGraphConfigured should be false without secret")
	}
}

func TestSendSilenceWebhookPayload(t *testing.T) {
	var got WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := SendSilenceWebhook(server.URL, 1e-8, 1e-6, 3); err != nil {
		t.Fatalf("SendSilenceWebhook() error: %v", err)
	}
	if got.Event != "no_signal" {
		t.Errorf("event = %q, want no_signal", got.Event)
	}
	if got.SilentCycles != 3 {
		t.Errorf("silent_cycles = %d, want 3", got.SilentCycles)
	}
	if got.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestSendWebhookSkipsWhenUnconfigured(t *testing.T) {
	if err := SendSilenceWebhook("", 1e-8, 1e-6, 3); err != nil {
		t.Errorf("unconfigured webhook should be a no-op, got %v", err)
	}
}

func TestSendWebhookReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := SendRecoveryWebhook(server.URL, 0.005, 4); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestLogEntriesAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.log")

	if err := LogSilenceStart(path, 1e-8, 1e-6, 3); err != nil {
		t.Fatalf("LogSilenceStart() error: %v", err)
	}
	if err := LogSilenceEnd(path, 0.005, 4); err != nil {
		t.Fatalf("LogSilenceEnd() error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var entries []SilenceLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e SilenceLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parse line: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Event != "no_signal" || entries[1].Event != "signal_recovered" {
		t.Errorf("events = %q, %q", entries[0].Event, entries[1].Event)
	}
	if entries[0].SilentCycles != 3 {
		t.Errorf("silent_cycles = %d", entries[0].SilentCycles)
	}
}

func TestLogSkipsWhenUnconfigured(t *testing.T) {
	if err := LogSilenceStart("", 1e-8, 1e-6, 3); err != nil {
		t.Errorf("unconfigured log should be a no-op, got %v", err)
	}
}
