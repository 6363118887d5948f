package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// General settings use MSGPORT_* variables (e.g. MSGPORT_QUIET_HOURS,
// MSGPORT_METRICS_PORT). Provider credentials additionally honor the
// conventional variable names each provider's users already export:
// GMAIL_USERNAME / GMAIL_PASSWORD, AZURE_SMS_CONNECTION_STRING /
// AZURE_SMS_NUMBER / SMS_NUMBER, and PUSHOVER_API_KEY / PUSHOVER_USER_KEY.
func ApplyEnvOverrides(cfg *Config) error {
	if err := applyDispatchEnv(cfg); err != nil {
		return err
	}
	if err := applyEmailEnv(cfg); err != nil {
		return err
	}
	applySMSEnv(cfg)
	applyPushoverEnv(cfg)
	applyChatEnv(cfg)
	if err := applyMetricsEnv(cfg); err != nil {
		return err
	}
	if err := applyInfluxEnv(cfg); err != nil {
		return err
	}
	applyStorageEnv(cfg)
	return nil
}

// applyDispatchEnv consolidates quiet hours and retry tuning
func applyDispatchEnv(cfg *Config) error {
	if v := os.Getenv("MSGPORT_QUIET_HOURS"); v != "" {
		cfg.QuietHours = v
	}
	if v := os.Getenv("MSGPORT_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MSGPORT_COOLDOWN: %w", err)
		}
		cfg.Cooldown = d
	}
	if v := os.Getenv("MSGPORT_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MSGPORT_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("MSGPORT_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MSGPORT_RETRY_BACKOFF: %w", err)
		}
		cfg.RetryBackoff = d
	}
	return nil
}

// applyEmailEnv consolidates email-related env parsing. GMAIL_USERNAME and
// GMAIL_PASSWORD fill the credential fields only when nothing else set them,
// matching the argument-beats-environment precedence.
func applyEmailEnv(cfg *Config) error {
	if v := os.Getenv("MSGPORT_EMAIL_HOST"); v != "" {
		cfg.EmailHost = v
	}
	if v := os.Getenv("MSGPORT_EMAIL_USER"); v != "" {
		cfg.EmailUser = v
	}
	if v := os.Getenv("MSGPORT_EMAIL_PASS"); v != "" {
		cfg.EmailPass = v
	}
	if v := os.Getenv("MSGPORT_EMAIL_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MSGPORT_EMAIL_PORT: %w", err)
		}
		cfg.EmailPort = p
	}
	if v := os.Getenv("MSGPORT_EMAIL_TO"); v != "" {
		cfg.EmailTo = splitAndTrim(v)
	}
	if cfg.EmailUser == "" {
		if v := os.Getenv("GMAIL_USERNAME"); v != "" {
			cfg.EmailUser = v
			if cfg.EmailHost == "" {
				cfg.EmailHost = "smtp.gmail.com"
			}
		}
	}
	if cfg.EmailPass == "" {
		if v := os.Getenv("GMAIL_PASSWORD"); v != "" {
			cfg.EmailPass = v
		}
	}
	return nil
}

// applySMSEnv reads the Azure Communication Services settings
func applySMSEnv(cfg *Config) {
	if v := os.Getenv("AZURE_SMS_CONNECTION_STRING"); v != "" && cfg.SMSConnectionString == "" {
		cfg.SMSConnectionString = v
	}
	if v := os.Getenv("AZURE_SMS_NUMBER"); v != "" && cfg.SMSFrom == "" {
		cfg.SMSFrom = v
	}
	if v := os.Getenv("SMS_NUMBER"); v != "" && len(cfg.SMSTo) == 0 {
		cfg.SMSTo = splitAndTrim(v)
	}
}

// applyPushoverEnv reads Pushover credentials
func applyPushoverEnv(cfg *Config) {
	if v := os.Getenv("PUSHOVER_USER_KEY"); v != "" && cfg.PushoverUser == "" {
		cfg.PushoverUser = v
	}
	if v := os.Getenv("PUSHOVER_API_KEY"); v != "" && cfg.PushoverToken == "" {
		cfg.PushoverToken = v
	}
	if v := os.Getenv("MSGPORT_PUSHOVER_SOUND"); v != "" {
		cfg.PushoverSound = v
	}
	if v := os.Getenv("MSGPORT_PUSHOVER_DEVICE"); v != "" {
		cfg.PushoverDevice = v
	}
}

// applyChatEnv consolidates chat webhook env parsing
func applyChatEnv(cfg *Config) {
	if v := os.Getenv("MSGPORT_SLACK_WEBHOOK"); v != "" {
		cfg.SlackWebhook = v
	}
	if v := os.Getenv("MSGPORT_DISCORD_WEBHOOK"); v != "" {
		cfg.DiscordWebhook = v
	}
	if v := os.Getenv("MSGPORT_TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := os.Getenv("MSGPORT_TELEGRAM_CHAT_ID"); v != "" {
		cfg.TelegramChatID = v
	}
	if v := os.Getenv("MSGPORT_GENERIC_WEBHOOK_URL"); v != "" {
		cfg.GenericWebhookURL = v
	}
}

// applyMetricsEnv consolidates metrics-related env parsing
func applyMetricsEnv(cfg *Config) error {
	if v := os.Getenv("MSGPORT_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MSGPORT_METRICS_ENABLED: %w", err)
		}
		cfg.MetricsEnabled = b
	}
	if v := os.Getenv("MSGPORT_METRICS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MSGPORT_METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = p
	}
	return nil
}

// applyInfluxEnv consolidates Influx-related env parsing
func applyInfluxEnv(cfg *Config) error {
	if v := os.Getenv("MSGPORT_INFLUX_URL"); v != "" {
		cfg.InfluxURL = v
	}
	if v := os.Getenv("MSGPORT_INFLUX_TOKEN"); v != "" {
		cfg.InfluxToken = v
	}
	if v := os.Getenv("MSGPORT_INFLUX_ORG"); v != "" {
		cfg.InfluxOrg = v
	}
	if v := os.Getenv("MSGPORT_INFLUX_BUCKET"); v != "" {
		cfg.InfluxBucket = v
	}
	if v := os.Getenv("MSGPORT_INFLUX_INTERVAL"); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MSGPORT_INFLUX_INTERVAL: %w", err)
		}
		cfg.InfluxInterval = dur
	}
	return nil
}

// applyStorageEnv reads journal and relay settings
func applyStorageEnv(cfg *Config) {
	if v := os.Getenv("MSGPORT_HISTORY_PATH"); v != "" {
		cfg.HistoryPath = v
	}
	if v := os.Getenv("MSGPORT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
}

// splitAndTrim splits a comma-separated list and trims whitespace
func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
