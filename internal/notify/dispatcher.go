// Package notify provides notification backends for msgport.
package notify

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msgport/msgport/internal/logging"
	"github.com/msgport/msgport/internal/metrics"
)

// DefaultCooldown is the default cooldown between dispatches to the same
// provider. Kept small so distinct events in quick succession are not dropped.
var DefaultCooldown = 100 * time.Millisecond

// Retry settings (can be tuned in tests)
var dispatchMaxRetries = 3
var dispatchBaseBackoff = 100 * time.Millisecond

// dispatchBackoffJitter adds up to this random duration to backoff (to avoid thundering herd)
var dispatchBackoffJitter = 0 * time.Millisecond

// sleepHook is used in tests to avoid sleeping for real
var sleepHook = time.Sleep

// Service is the interface all notification providers must implement
type Service interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Recorder receives the outcome of every provider send. Implementations must
// be safe for concurrent use.
type Recorder interface {
	Record(messageID, provider, status, detail string, at time.Time)
}

// Outcome values passed to a Recorder.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Dispatcher fans a message out to all registered providers
type Dispatcher struct {
	services []Service
	// lastSent tracks last successful send per provider name
	lastSent map[string]time.Time
	// cooldown applies to all providers by default
	cooldown time.Duration
	// per-provider cooldowns
	providerCooldowns map[string]time.Duration
	recorder          Recorder
	maxRetries        int
	baseBackoff       time.Duration
	mu                sync.Mutex
	wg                sync.WaitGroup
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		services:    make([]Service, 0),
		lastSent:    make(map[string]time.Time),
		cooldown:    DefaultCooldown,
		maxRetries:  dispatchMaxRetries,
		baseBackoff: dispatchBaseBackoff,
	}
}

func (d *Dispatcher) Add(s Service) {
	if s != nil {
		d.services = append(d.services, s)
	}
}

func (d *Dispatcher) Len() int {
	return len(d.services)
}

// Providers returns the names of all registered providers.
func (d *Dispatcher) Providers() []string {
	names := make([]string, 0, len(d.services))
	for _, s := range d.services {
		names = append(names, s.Name())
	}
	return names
}

// UnknownProviders returns any requested provider names (matched
// case-insensitively) that no registered provider answers to.
func (d *Dispatcher) UnknownProviders(requested []string) []string {
	var unknown []string
	for _, r := range requested {
		found := false
		for _, s := range d.services {
			if strings.EqualFold(r, s.Name()) {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, r)
		}
	}
	return unknown
}

// SetCooldown allows tests or callers to adjust the global cooldown
func (d *Dispatcher) SetCooldown(dur time.Duration) {
	d.cooldown = dur
}

// SetProviderCooldown sets a cooldown for a named provider (by Service.Name())
func (d *Dispatcher) SetProviderCooldown(name string, dur time.Duration) {
	if d.providerCooldowns == nil {
		d.providerCooldowns = make(map[string]time.Duration)
	}
	d.providerCooldowns[name] = dur
}

// ProviderCooldown returns the cooldown for a given provider or the global default
func (d *Dispatcher) ProviderCooldown(name string) time.Duration {
	if v, ok := d.providerCooldowns[name]; ok {
		return v
	}
	return d.cooldown
}

// SetRetries adjusts the retry budget and base backoff per provider send.
func (d *Dispatcher) SetRetries(max int, backoff time.Duration) {
	if max > 0 {
		d.maxRetries = max
	}
	if backoff > 0 {
		d.baseBackoff = backoff
	}
}

// SetRecorder installs a journal for send outcomes.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// ResetLastSent resets the last-sent timestamp for a provider (tests)
func (d *Dispatcher) ResetLastSent(name string) {
	delete(d.lastSent, name)
}

// Wait waits for pending sends to complete or until the provided context is
// cancelled.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch sends the message to all providers with per-provider retries and a
// cooldown to avoid spamming. Returns the generated message ID; completion is
// observed via Wait.
func (d *Dispatcher) Dispatch(ctx context.Context, title, message string) string {
	return d.DispatchTo(ctx, title, message, nil)
}

// DispatchTo behaves like Dispatch but restricts sending to the named
// providers. A nil or empty filter means all registered providers.
func (d *Dispatcher) DispatchTo(ctx context.Context, title, message string, only []string) string {
	id := uuid.NewString()
	now := time.Now()
	for _, s := range d.services {
		name := s.Name()
		if !providerSelected(name, only) {
			continue
		}
		d.wg.Add(1)
		go func(svc Service, svcName string) {
			defer d.wg.Done()
			if d.shouldSkipDueToCooldown(svcName, now) {
				logging.Get().Warn().Str("provider", svcName).Str("message_id", id).Msg("skipping send due to cooldown")
				d.record(id, svcName, OutcomeSkipped, "cooldown", time.Now())
				return
			}
			start := time.Now()
			if err := d.sendWithRetries(ctx, svc, title, message, svcName); err != nil {
				logging.Get().Error().Err(err).Str("provider", svcName).Str("message_id", id).Msg("all send retries failed")
				metrics.IncSendFailed(svcName)
				d.record(id, svcName, OutcomeFailed, err.Error(), time.Now())
				return
			}
			metrics.IncSend(svcName)
			metrics.ObserveSendDuration(time.Since(start).Seconds())
			metrics.SetLastSend(time.Now())
			d.record(id, svcName, OutcomeSent, "", time.Now())
		}(s, name)
	}
	return id
}

func providerSelected(name string, only []string) bool {
	if len(only) == 0 {
		return true
	}
	for _, o := range only {
		if strings.EqualFold(o, name) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) record(id, provider, status, detail string, at time.Time) {
	if d.recorder != nil {
		d.recorder.Record(id, provider, status, detail, at)
	}
}

// shouldSkipDueToCooldown returns true when a provider should be skipped due to cooldown
func (d *Dispatcher) shouldSkipDueToCooldown(name string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lastSent[name]; ok {
		if now.Sub(last) < d.ProviderCooldown(name) {
			return true
		}
	}
	return false
}

// sendWithRetries attempts a send with retries and backoff. Returns the last error if any.
func (d *Dispatcher) sendWithRetries(ctx context.Context, s Service, title, message, name string) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		if err := s.Send(ctx, title, message); err != nil {
			lastErr = err
			logging.Get().Warn().Err(err).Str("provider", name).Int("attempt", attempt).Msg("send attempt failed")
			if attempt < d.maxRetries {
				// context-aware sleep: allow cancellation via ctx, but use sleepHook to speed tests.
				dur := d.backoffDuration(attempt)
				slept := make(chan struct{})
				go func() {
					sleepHook(dur)
					close(slept)
				}()
				select {
				case <-slept:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		d.mu.Lock()
		d.lastSent[name] = time.Now()
		d.mu.Unlock()
		logging.Get().Debug().Str("provider", name).Msg("notification sent")
		return nil
	}
	return lastErr
}

// backoffDuration returns the computed backoff including optional jitter for the given attempt
func (d *Dispatcher) backoffDuration(attempt int) time.Duration {
	dur := d.baseBackoff * time.Duration(1<<uint(attempt-1))
	if dispatchBackoffJitter > 0 {
		// Use crypto/rand to generate non-predictable jitter for backoff
		max := big.NewInt(int64(dispatchBackoffJitter))
		if n, err := crand.Int(crand.Reader, max); err == nil {
			dur += time.Duration(n.Int64())
		}
	}
	return dur
}

// postJSON is a shared helper used by providers
func postJSON(ctx context.Context, url string, data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return nil
}

// postForm is a shared helper for providers with form-encoded APIs. The
// response body is returned so callers can surface provider error text.
func postForm(ctx context.Context, endpoint string, values url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
