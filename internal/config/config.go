// Package config holds runtime configuration for msgport.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for msgport.
type Config struct {
	// QuietHours suppresses non-urgent dispatches inside the window.
	// Format: "HH:MM-HH:MM" in local time; empty means never quiet.
	QuietHours string `json:"quiet_hours" yaml:"quiet_hours"`

	// Dispatch behavior
	Cooldown     time.Duration `json:"cooldown" yaml:"cooldown"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`

	// Email (SMTP). EmailUser doubles as the sender address.
	EmailHost string   `json:"email_host" yaml:"email_host"`
	EmailPort int      `json:"email_port" yaml:"email_port"`
	EmailUser string   `json:"email_user" yaml:"email_user"`
	EmailPass string   `json:"email_pass" yaml:"email_pass"`
	EmailTo   []string `json:"email_to" yaml:"email_to"`

	// SMS (Azure Communication Services)
	SMSConnectionString string   `json:"sms_connection_string" yaml:"sms_connection_string"`
	SMSFrom             string   `json:"sms_from" yaml:"sms_from"`
	SMSTo               []string `json:"sms_to" yaml:"sms_to"`

	// Pushover
	PushoverUser   string `json:"pushover_user" yaml:"pushover_user"`
	PushoverToken  string `json:"pushover_token" yaml:"pushover_token"`
	PushoverSound  string `json:"pushover_sound" yaml:"pushover_sound"`
	PushoverDevice string `json:"pushover_device" yaml:"pushover_device"`

	// Chat webhooks
	SlackWebhook      string `json:"slack_webhook" yaml:"slack_webhook"`
	DiscordWebhook    string `json:"discord_webhook" yaml:"discord_webhook"`
	TelegramToken     string `json:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string `json:"telegram_chat_id" yaml:"telegram_chat_id"`
	GenericWebhookURL string `json:"generic_webhook_url" yaml:"generic_webhook_url"`

	// Metrics
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPort    int  `json:"metrics_port" yaml:"metrics_port"`

	// InfluxDB (push)
	InfluxURL      string        `json:"influx_url" yaml:"influx_url"`
	InfluxToken    string        `json:"influx_token" yaml:"influx_token"`
	InfluxOrg      string        `json:"influx_org" yaml:"influx_org"`
	InfluxBucket   string        `json:"influx_bucket" yaml:"influx_bucket"`
	InfluxInterval time.Duration `json:"influx_interval" yaml:"influx_interval"`

	// HistoryPath is the SQLite send journal location. Empty disables the journal.
	HistoryPath string `json:"history_path" yaml:"history_path"`

	// ListenAddr is the relay server bind address (-serve mode).
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// IsQuiet returns true when the provided time falls inside the configured
// quiet hours. Supports windows that span midnight (e.g., "23:00-02:00").
// An invalid window is treated as quiet so a typo cannot cause paging storms.
func (c *Config) IsQuiet(now time.Time) bool {
	if c.QuietHours == "" {
		return false
	}
	startMinutes, endMinutes, ok := parseQuietWindow(c.QuietHours)
	if !ok {
		return true
	}
	nowMinutes := now.Hour()*60 + now.Minute()

	if endMinutes > startMinutes {
		return nowMinutes >= startMinutes && nowMinutes <= endMinutes
	}
	// window wraps midnight
	return nowMinutes >= startMinutes || nowMinutes <= endMinutes
}

// parseQuietWindow parses a "HH:MM-HH:MM" window into start/end minutes of
// the day. ok is false for unparseable or out-of-range values.
func parseQuietWindow(qh string) (start, end int, ok bool) {
	var sh, sm, eh, em int
	n, err := fmt.Sscanf(qh, "%d:%d-%d:%d", &sh, &sm, &eh, &em)
	if err != nil || n != 4 || sh < 0 || sh > 23 || eh < 0 || eh > 23 || sm < 0 || sm > 59 || em < 0 || em > 59 {
		return 0, 0, false
	}
	return sh*60 + sm, eh*60 + em, true
}

// DefaultConfig returns a sane default configuration
func DefaultConfig() *Config {
	return &Config{
		QuietHours:   "",
		Cooldown:     100 * time.Millisecond,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,

		// implicit-TLS SMTP by default
		EmailPort: 465,

		PushoverSound: "bugle",

		// Metrics defaults (opt-in)
		MetricsEnabled: false,
		MetricsPort:    9090,

		InfluxInterval: 1 * time.Minute,

		HistoryPath: "/var/lib/msgport/history.db",
		ListenAddr:  ":8280",
	}
}

// Validate returns a list of non-fatal configuration warnings, such as
// incomplete provider credential combinations.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{c.PushoverUser != "" && c.PushoverToken == "", "pushover user provided but token is missing"},
		{c.PushoverToken != "" && c.PushoverUser == "", "pushover token provided but user is missing"},
		{c.EmailHost != "" && len(c.EmailTo) == 0, "email host provided but no recipients configured (EmailTo)"},
		{c.EmailHost == "" && len(c.EmailTo) > 0, "email recipients configured but email host is empty"},
		{c.EmailHost != "" && (c.EmailUser == "" || c.EmailPass == ""), "email host provided but credentials are incomplete (EmailUser/EmailPass)"},
		{c.SMSConnectionString != "" && c.SMSFrom == "", "sms connection string provided but sending number is missing (SMSFrom)"},
		{c.SMSFrom != "" && c.SMSConnectionString == "", "sms sending number provided but connection string is missing"},
		{c.TelegramToken != "" && c.TelegramChatID == "", "telegram token provided but chat id is missing"},
		{c.TelegramChatID != "" && c.TelegramToken == "", "telegram chat id provided but token is missing"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	if qh := validateQuietHours(c.QuietHours); qh != "" {
		warnings = append(warnings, qh)
	}
	return warnings
}

// validateQuietHours returns a warning string when the provided window is invalid, or empty when valid/empty.
func validateQuietHours(qh string) string {
	if qh == "" {
		return ""
	}
	if _, _, ok := parseQuietWindow(qh); !ok {
		return fmt.Sprintf("invalid QuietHours format: %q (expected HH:MM-HH:MM)", qh)
	}
	return ""
}

// LoadConfigFromFile loads config from a YAML/JSON file
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
