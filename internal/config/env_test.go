package config

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides(t *testing.T) {
	cleanup := applyEnvSetup(t)
	defer cleanup()

	cfg := DefaultConfig()
	if err := ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}
	validateAppliedEnvOverrides(t, cfg)
}

func applyEnvSetup(t *testing.T) func() {
	t.Helper()
	vars := map[string]string{
		"MSGPORT_QUIET_HOURS":         "01:00-03:00",
		"MSGPORT_COOLDOWN":            "2s",
		"MSGPORT_MAX_RETRIES":         "5",
		"MSGPORT_RETRY_BACKOFF":       "250ms",
		"MSGPORT_METRICS_ENABLED":     "true",
		"MSGPORT_METRICS_PORT":        "9100",
		"MSGPORT_INFLUX_URL":          "http://influx:8086",
		"MSGPORT_INFLUX_BUCKET":       "b",
		"MSGPORT_INFLUX_ORG":          "o",
		"MSGPORT_INFLUX_TOKEN":        "t",
		"MSGPORT_INFLUX_INTERVAL":     "30s",
		"MSGPORT_EMAIL_TO":            "a@example.com, b@example.com",
		"PUSHOVER_API_KEY":            "app-token",
		"PUSHOVER_USER_KEY":           "user-key",
		"AZURE_SMS_CONNECTION_STRING": "endpoint=https://acs.example/;accesskey=c2VjcmV0",
		"AZURE_SMS_NUMBER":            "+18335557777",
		"SMS_NUMBER":                  "3334445555",
	}
	for k, v := range vars {
		os.Setenv(k, v)
	}
	return func() {
		for k := range vars {
			os.Unsetenv(k)
		}
	}
}

func validateAppliedEnvOverrides(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.QuietHours != "01:00-03:00" {
		t.Fatalf("unexpected quiet hours: %s", cfg.QuietHours)
	}
	if cfg.Cooldown != 2*time.Second {
		t.Fatalf("expected cooldown 2s, got %v", cfg.Cooldown)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", cfg.MaxRetries)
	}
	if cfg.RetryBackoff != 250*time.Millisecond {
		t.Fatalf("expected retry backoff 250ms, got %v", cfg.RetryBackoff)
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("expected metrics enabled")
	}
	if cfg.MetricsPort != 9100 {
		t.Fatalf("expected metrics port 9100, got %d", cfg.MetricsPort)
	}
	if cfg.InfluxURL != "http://influx:8086" {
		t.Fatalf("unexpected influx url: %s", cfg.InfluxURL)
	}
	if cfg.InfluxBucket != "b" || cfg.InfluxOrg != "o" || cfg.InfluxToken != "t" {
		t.Fatalf("unexpected influx config: %v", cfg)
	}
	if cfg.InfluxInterval != 30*time.Second {
		t.Fatalf("unexpected influx interval: %v", cfg.InfluxInterval)
	}
	if len(cfg.EmailTo) != 2 || cfg.EmailTo[1] != "b@example.com" {
		t.Fatalf("unexpected email recipients: %v", cfg.EmailTo)
	}
	if cfg.PushoverToken != "app-token" || cfg.PushoverUser != "user-key" {
		t.Fatalf("unexpected pushover config: %+v", cfg)
	}
	if cfg.SMSConnectionString == "" || cfg.SMSFrom != "+18335557777" {
		t.Fatalf("unexpected sms config: %+v", cfg)
	}
	if len(cfg.SMSTo) != 1 || cfg.SMSTo[0] != "3334445555" {
		t.Fatalf("unexpected sms recipients: %v", cfg.SMSTo)
	}
}

func TestGmailEnvFallback(t *testing.T) {
	os.Setenv("GMAIL_USERNAME", "sender@gmail.com")
	os.Setenv("GMAIL_PASSWORD", "app-pass")
	defer os.Unsetenv("GMAIL_USERNAME")
	defer os.Unsetenv("GMAIL_PASSWORD")

	cfg := DefaultConfig()
	if err := ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}
	if cfg.EmailUser != "sender@gmail.com" || cfg.EmailPass != "app-pass" {
		t.Fatalf("expected gmail credentials from env, got %+v", cfg)
	}
	if cfg.EmailHost != "smtp.gmail.com" {
		t.Fatalf("expected gmail host to be inferred, got %q", cfg.EmailHost)
	}
}

func TestGmailEnvDoesNotOverrideExplicit(t *testing.T) {
	os.Setenv("GMAIL_USERNAME", "sender@gmail.com")
	defer os.Unsetenv("GMAIL_USERNAME")
	os.Setenv("MSGPORT_EMAIL_USER", "explicit@example.com")
	defer os.Unsetenv("MSGPORT_EMAIL_USER")
	os.Setenv("MSGPORT_EMAIL_HOST", "smtp.example.com")
	defer os.Unsetenv("MSGPORT_EMAIL_HOST")

	cfg := DefaultConfig()
	if err := ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}
	if cfg.EmailUser != "explicit@example.com" {
		t.Fatalf("explicit user should win over GMAIL_USERNAME, got %q", cfg.EmailUser)
	}
	if cfg.EmailHost != "smtp.example.com" {
		t.Fatalf("explicit host should win, got %q", cfg.EmailHost)
	}
}

func TestApplyEnvOverridesRejectsBadValues(t *testing.T) {
	os.Setenv("MSGPORT_COOLDOWN", "not-a-duration")
	defer os.Unsetenv("MSGPORT_COOLDOWN")

	cfg := DefaultConfig()
	if err := ApplyEnvOverrides(cfg); err == nil {
		t.Fatal("expected error for invalid MSGPORT_COOLDOWN")
	}
}
