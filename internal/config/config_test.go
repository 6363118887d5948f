package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/msgport/msgport/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	c := config.DefaultConfig()
	if c.QuietHours != "" {
		t.Fatalf("expected default quiet hours to be empty, got %q", c.QuietHours)
	}
	if c.EmailPort != 465 {
		t.Fatalf("expected default email port 465, got %d", c.EmailPort)
	}
	if c.MaxRetries <= 0 {
		t.Fatal("expected default max retries to be >0")
	}
	if c.PushoverSound != "bugle" {
		t.Fatalf("expected default pushover sound bugle, got %q", c.PushoverSound)
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PushoverUser = "u"
	// missing token
	w := cfg.Validate()
	if len(w) == 0 {
		t.Fatalf("expected warnings, got none")
	}
	// set token but no user
	cfg2 := config.DefaultConfig()
	cfg2.PushoverToken = "tok"
	w2 := cfg2.Validate()
	if len(w2) == 0 {
		t.Fatalf("expected warnings for missing user when token set, got none")
	}
	// email host without recipients
	cfg3 := config.DefaultConfig()
	cfg3.EmailHost = "mail"
	w3 := cfg3.Validate()
	if len(w3) == 0 {
		t.Fatalf("expected email warnings, got none")
	}
	// email host with recipients but no credentials
	cfg3b := config.DefaultConfig()
	cfg3b.EmailHost = "mail"
	cfg3b.EmailTo = []string{"ops@example.com"}
	found := false
	for _, warn := range cfg3b.Validate() {
		if strings.Contains(warn, "credentials are incomplete") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning for email host without credentials")
	}
	// sms connection string without sending number
	cfg4 := config.DefaultConfig()
	cfg4.SMSConnectionString = "endpoint=https://acs.example/;accesskey=aaa"
	w4 := cfg4.Validate()
	if len(w4) == 0 {
		t.Fatalf("expected sms warnings, got none")
	}
	// invalid quiet hours
	cfg5 := config.DefaultConfig()
	cfg5.QuietHours = "25:00-26:00"
	w5 := cfg5.Validate()
	if len(w5) == 0 {
		t.Fatalf("expected quiet hours warning, got none")
	}
}

func TestIsQuiet(t *testing.T) {
	mk := func(h, m int) time.Time {
		return time.Date(2024, 5, 1, h, m, 0, 0, time.Local)
	}
	tests := []struct {
		name   string
		window string
		now    time.Time
		want   bool
	}{
		{"empty window never quiet", "", mk(3, 0), false},
		{"inside normal window", "22:00-23:30", mk(22, 30), true},
		{"outside normal window", "22:00-23:30", mk(12, 0), false},
		{"wraps midnight, before midnight", "23:00-02:00", mk(23, 30), true},
		{"wraps midnight, after midnight", "23:00-02:00", mk(1, 0), true},
		{"wraps midnight, outside", "23:00-02:00", mk(12, 0), false},
		{"invalid window treated as quiet", "nonsense", mk(12, 0), true},
		{"out-of-range hours treated as quiet", "25:00-26:00", mk(12, 0), true},
		{"out-of-range minutes treated as quiet", "22:61-23:00", mk(12, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.QuietHours = tt.window
			if got := cfg.IsQuiet(tt.now); got != tt.want {
				t.Fatalf("IsQuiet(%v) with window %q = %v, want %v", tt.now, tt.window, got, tt.want)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgport.yaml")
	body := []byte("quiet_hours: \"01:00-03:00\"\nemail_host: smtp.example.com\nemail_to:\n  - ops@example.com\npushover_sound: cosmic\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}
	if cfg.QuietHours != "01:00-03:00" {
		t.Fatalf("unexpected quiet hours: %q", cfg.QuietHours)
	}
	if cfg.EmailHost != "smtp.example.com" || len(cfg.EmailTo) != 1 {
		t.Fatalf("unexpected email config: %+v", cfg)
	}
	// untouched fields keep their defaults
	if cfg.EmailPort != 465 {
		t.Fatalf("expected default email port to survive, got %d", cfg.EmailPort)
	}
	if cfg.PushoverSound != "cosmic" {
		t.Fatalf("expected file to override pushover sound, got %q", cfg.PushoverSound)
	}
}
