package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeService struct {
	name  string
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (f *fakeService) Send(ctx context.Context, title, message string) error {
	f.mu.Lock()
	f.calls = append(f.calls, title+"|"+message)
	f.mu.Unlock()
	if f.fail {
		return errors.New("fail")
	}
	return nil
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recorderSpy captures Recorder callbacks for assertions
type recorderSpy struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorderSpy) Record(messageID, provider, status, detail string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, provider+"|"+status)
}

func (r *recorderSpy) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

func TestDispatcherFanout(t *testing.T) {
	oldSleep := sleepHook
	sleepHook = func(d time.Duration) {}
	t.Cleanup(func() { sleepHook = oldSleep })

	d := NewDispatcher()
	d.SetRetries(3, time.Millisecond)
	s1 := &fakeService{name: "s1"}
	s2 := &fakeService{name: "s2", fail: true}
	d.Add(s1)
	d.Add(s2)
	id := d.Dispatch(context.Background(), "title", "msg")
	if id == "" {
		t.Fatal("expected a message id")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if s1.callCount() != 1 {
		t.Fatalf("expected s1 to be called once, got %v", s1.calls)
	}
	if s2.callCount() != 3 {
		t.Fatalf("expected s2 to be retried 3 times, got %v", s2.calls)
	}
}

func TestDispatchToFiltersProviders(t *testing.T) {
	d := NewDispatcher()
	s1 := &fakeService{name: "Email"}
	s2 := &fakeService{name: "Pushover"}
	d.Add(s1)
	d.Add(s2)

	// filter is case-insensitive
	d.DispatchTo(context.Background(), "T", "M", []string{"pushover"})
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if s1.callCount() != 0 {
		t.Fatalf("expected Email to be skipped, got %v", s1.calls)
	}
	if s2.callCount() != 1 {
		t.Fatalf("expected Pushover to be called once, got %v", s2.calls)
	}
}

func TestUnknownProviders(t *testing.T) {
	d := NewDispatcher()
	d.Add(&fakeService{name: "Email"})
	d.Add(&fakeService{name: "Pushover"})

	if unknown := d.UnknownProviders(nil); len(unknown) != 0 {
		t.Fatalf("expected empty filter to match, got %v", unknown)
	}
	if unknown := d.UnknownProviders([]string{"email", "PUSHOVER"}); len(unknown) != 0 {
		t.Fatalf("expected case-insensitive match, got %v", unknown)
	}
	// a typo must be reported, not silently matched against nothing
	unknown := d.UnknownProviders([]string{"email", "pushovr"})
	if len(unknown) != 1 || unknown[0] != "pushovr" {
		t.Fatalf("expected pushovr to be reported as unknown, got %v", unknown)
	}
}

func TestDispatcherRecordsOutcomes(t *testing.T) {
	oldSleep := sleepHook
	sleepHook = func(d time.Duration) {}
	t.Cleanup(func() { sleepHook = oldSleep })

	d := NewDispatcher()
	d.SetRetries(2, time.Millisecond)
	spy := &recorderSpy{}
	d.SetRecorder(spy)
	d.Add(&fakeService{name: "ok"})
	d.Add(&fakeService{name: "bad", fail: true})

	d.Dispatch(context.Background(), "T", "M")
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	got := spy.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 recorded outcomes, got %v", got)
	}
	seen := map[string]bool{}
	for _, e := range got {
		seen[e] = true
	}
	if !seen["ok|"+OutcomeSent] || !seen["bad|"+OutcomeFailed] {
		t.Fatalf("unexpected outcomes: %v", got)
	}
}

func TestDispatcherRetriesAndCooldown(t *testing.T) {
	oldSleep := sleepHook
	sleepHook = func(d time.Duration) {}
	t.Cleanup(func() { sleepHook = oldSleep })

	d := NewDispatcher()
	d.SetRetries(3, time.Millisecond)
	d.SetCooldown(0)
	// also exercise provider-specific cooldown override
	d.SetProviderCooldown("controlled", 1*time.Second)

	ctl := &controlled{}
	d.Add(ctl)
	d.Dispatch(context.Background(), "T", "M")
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	// after a single Dispatch call, controlled.calls should be 3 (2 failures + 1 success)
	if ctl.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", ctl.calls)
	}

	// cooldown: mark lastSent as now and ensure the next dispatch is skipped
	d.SetCooldown(1 * time.Minute)
	d.lastSent["controlled"] = time.Now()
	ctl.calls = 0
	d.Dispatch(context.Background(), "T2", "M2")
	ctx2, cancel2 := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel2()
	if err := d.Wait(ctx2); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if ctl.calls != 0 {
		t.Fatalf("expected 0 attempts due to cooldown, got %d", ctl.calls)
	}
}

func TestBackoffJitterAndSleepHook(t *testing.T) {
	d := NewDispatcher()
	oldSleep := sleepHook
	var mu sync.Mutex
	durations := make([]time.Duration, 0)
	sleepHook = func(dur time.Duration) {
		mu.Lock()
		durations = append(durations, dur)
		mu.Unlock()
	}
	t.Cleanup(func() { sleepHook = oldSleep })

	oldJitter := dispatchBackoffJitter
	dispatchBackoffJitter = 20 * time.Millisecond
	defer func() { dispatchBackoffJitter = oldJitter }()

	ctl := &controlled{}
	d.Add(ctl)
	d.SetCooldown(0)
	d.SetRetries(3, 10*time.Millisecond)
	d.Dispatch(context.Background(), "T", "M")
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	// we expect two sleep durations (after attempts 1 & 2)
	mu.Lock()
	defer mu.Unlock()
	if len(durations) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(durations))
	}
	for _, dur := range durations {
		if dur < 10*time.Millisecond {
			t.Fatalf("expected sleep >= base backoff, got %v", dur)
		}
	}
}

// controlled is a helper fake used in retry tests
type controlled struct{ calls int }

func (c *controlled) Send(ctx context.Context, title, message string) error {
	c.calls++
	if c.calls < 3 {
		return errors.New("temp")
	}
	return nil
}

func (c *controlled) Name() string { return "controlled" }
