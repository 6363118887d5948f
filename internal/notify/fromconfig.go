package notify

import (
	"fmt"

	"github.com/msgport/msgport/internal/config"
)

// FromConfig builds a Dispatcher with every provider the configuration
// enables. Providers with incomplete credential pairs are skipped (Validate
// already warns about those); malformed values such as an unparseable
// connection string or phone number are returned as errors.
func FromConfig(cfg *config.Config) (*Dispatcher, error) {
	d := NewDispatcher()
	d.SetCooldown(cfg.Cooldown)
	d.SetRetries(cfg.MaxRetries, cfg.RetryBackoff)

	entries := []struct {
		enabled bool
		add     func() error
	}{
		{cfg.EmailHost != "" && len(cfg.EmailTo) > 0, func() error {
			d.Add(&Email{Host: cfg.EmailHost, Port: cfg.EmailPort, User: cfg.EmailUser, Pass: cfg.EmailPass, To: cfg.EmailTo})
			return nil
		}},
		{cfg.SMSConnectionString != "" && cfg.SMSFrom != "", func() error {
			sms, err := NewAzureSMS(cfg.SMSConnectionString, cfg.SMSFrom, cfg.SMSTo)
			if err != nil {
				return fmt.Errorf("sms provider: %w", err)
			}
			d.Add(sms)
			return nil
		}},
		{cfg.PushoverUser != "" && cfg.PushoverToken != "", func() error {
			d.Add(&Pushover{UserKey: cfg.PushoverUser, APIToken: cfg.PushoverToken, Sound: cfg.PushoverSound, Device: cfg.PushoverDevice})
			return nil
		}},
		{cfg.SlackWebhook != "", func() error { d.Add(&Slack{WebhookURL: cfg.SlackWebhook}); return nil }},
		{cfg.DiscordWebhook != "", func() error { d.Add(&Discord{WebhookURL: cfg.DiscordWebhook}); return nil }},
		{cfg.TelegramToken != "" && cfg.TelegramChatID != "", func() error {
			d.Add(&Telegram{BotToken: cfg.TelegramToken, ChatID: cfg.TelegramChatID})
			return nil
		}},
		{cfg.GenericWebhookURL != "", func() error { d.Add(&Generic{WebhookURL: cfg.GenericWebhookURL}); return nil }},
	}
	for _, e := range entries {
		if !e.enabled {
			continue
		}
		if err := e.add(); err != nil {
			return nil, err
		}
	}
	return d, nil
}
