package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

var pushoverAPIURL = "https://api.pushover.net/1/messages.json"

// defaultPushoverSound matches what users of the original tooling expect.
const defaultPushoverSound = "bugle"

// Pushover sends mobile push notifications through pushover.net. The API is
// form-encoded; a 4xx response carries an "errors" array worth surfacing.
type Pushover struct {
	UserKey, APIToken string
	// Sound defaults to "bugle" when empty. Device targets a single device
	// instead of all of the user's devices.
	Sound, Device string
}

// NewPushover builds a Pushover provider. Empty token or user key fall back
// to the PUSHOVER_API_KEY and PUSHOVER_USER_KEY environment variables.
func NewPushover(apiToken, userKey string) (*Pushover, error) {
	if apiToken == "" {
		apiToken = os.Getenv("PUSHOVER_API_KEY")
	}
	if userKey == "" {
		userKey = os.Getenv("PUSHOVER_USER_KEY")
	}
	if apiToken == "" || userKey == "" {
		return nil, errors.New("pushover credentials not provided and not set in PUSHOVER_API_KEY/PUSHOVER_USER_KEY")
	}
	return &Pushover{APIToken: apiToken, UserKey: userKey}, nil
}

// Name returns the provider name.
func (p *Pushover) Name() string {
	_ = p
	return "Pushover"
}

// Send submits the message to the Pushover messages endpoint.
func (p *Pushover) Send(ctx context.Context, title, message string) error {
	sound := p.Sound
	if sound == "" {
		sound = defaultPushoverSound
	}
	values := url.Values{
		"token":   {p.APIToken},
		"user":    {p.UserKey},
		"message": {message},
		"sound":   {sound},
	}
	if title != "" {
		values.Set("title", title)
	}
	if p.Device != "" {
		values.Set("device", p.Device)
	}

	status, body, err := postForm(ctx, pushoverAPIURL, values)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		// the API explains rejections in an errors array
		var apiResp struct {
			Errors []string `json:"errors"`
		}
		if jsonErr := json.Unmarshal(body, &apiResp); jsonErr == nil && len(apiResp.Errors) > 0 {
			return fmt.Errorf("pushover api returned status %d: %s", status, strings.Join(apiResp.Errors, "; "))
		}
		return fmt.Errorf("pushover api returned status %d", status)
	}
	return nil
}
