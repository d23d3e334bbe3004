package llmclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeClock drives the client's time without real sleeping. Sleeps advance
// the clock and are recorded for assertions.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sleeps = append(f.sleeps, d)
	f.t = f.t.Add(d)
	return nil
}

// scriptedProvider replays canned replies or errors in order and records
// when each dispatch happened on the fake clock.
type scriptedProvider struct {
	clock   *fakeClock
	replies []string
	errs    []error
	calls   int
	times   []time.Time
}

func (s *scriptedProvider) Generate(_ context.Context, _ string, _ Params) (string, error) {
	i := s.calls
	s.calls++
	s.times = append(s.times, s.clock.t)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("script exhausted")
}

func newTestClient(p Provider, cfg Config, clock *fakeClock) *Client {
	c := New(p, cfg)
	c.now = clock.now
	c.sleep = clock.sleep
	c.randFloat = func() float64 { return 0 }
	return c
}

// A clean first reply returns immediately with one dispatch.
func TestExecuteFirstAttemptSuccess(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{clock: clock, replies: []string{`{"status": "ok"}`}}
	c := newTestClient(p, Config{Retries: 3, CallsPerMinute: 15}, clock)

	got, err := c.Execute(context.Background(), "prompt", Params{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["status"] != "ok" {
		t.Fatalf("unexpected parse result: %v", got)
	}
	if p.calls != 1 {
		t.Fatalf("expected a single dispatch, got %d", p.calls)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("expected no sleeps on a clean first attempt, got %v", clock.sleeps)
	}
}

// Failed attempts back off with nondecreasing delays until one succeeds.
func TestExecuteRetriesWithGrowingBackoff(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{
		clock:   clock,
		errs:    []error{errors.New("503"), errors.New("503"), nil},
		replies: []string{"", "", `{"a": 1}`},
	}
	c := newTestClient(p, Config{Retries: 3, CallsPerMinute: 15, BackoffCap: 30 * time.Second}, clock)

	_, err := c.Execute(context.Background(), "prompt", Params{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("expected three dispatches, got %d", p.calls)
	}
	if len(clock.sleeps) != 2 {
		t.Fatalf("expected two backoff sleeps, got %v", clock.sleeps)
	}
	if clock.sleeps[0] != 2*time.Second || clock.sleeps[1] != 4*time.Second {
		t.Fatalf("expected 2s then 4s without jitter, got %v", clock.sleeps)
	}
}

// The backoff sequence never exceeds the configured cap.
func TestBackoffRespectsCap(t *testing.T) {
	clock := newFakeClock()
	c := newTestClient(&scriptedProvider{clock: clock}, Config{BackoffCap: 30 * time.Second}, clock)

	var prev time.Duration
	for n := 1; n <= 8; n++ {
		d := c.backoff(n)
		if d < prev {
			t.Fatalf("backoff must be nondecreasing, got %v after %v", d, prev)
		}
		if d > 30*time.Second {
			t.Fatalf("backoff exceeded cap: %v", d)
		}
		prev = d
	}
	if prev != 30*time.Second {
		t.Fatalf("expected the sequence to reach the cap, got %v", prev)
	}
}

// Exhausting the budget wraps the final attempt's error.
func TestExecuteExhaustsBudget(t *testing.T) {
	clock := newFakeClock()
	blocked := fmt.Errorf("%w: prompt blocked (SAFETY)", ErrContentBlocked)
	p := &scriptedProvider{clock: clock, errs: []error{blocked, blocked, blocked}}
	c := newTestClient(p, Config{Retries: 2, CallsPerMinute: 15}, clock)

	_, err := c.Execute(context.Background(), "prompt", Params{Model: "m"})
	if err == nil {
		t.Fatalf("expected an error after exhausting attempts")
	}
	if p.calls != 3 {
		t.Fatalf("expected three dispatches for retries=2, got %d", p.calls)
	}
	if !errors.Is(err, ErrContentBlocked) {
		t.Fatalf("expected the last cause to stay unwrappable, got %v", err)
	}
}

// An empty reply consumes an attempt and is retried.
func TestExecuteRetriesEmptyReply(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{clock: clock, replies: []string{"   ", `{"a": 1}`}}
	c := newTestClient(p, Config{Retries: 2, CallsPerMinute: 15}, clock)

	got, err := c.Execute(context.Background(), "prompt", Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["a"] != float64(1) || p.calls != 2 {
		t.Fatalf("expected success on the second dispatch, got %v after %d calls", got, p.calls)
	}
}

// A reply that cannot be repaired into JSON consumes an attempt too.
func TestExecuteRetriesUnparseableReply(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{clock: clock, replies: []string{"I cannot answer that", `{"a": 1}`}}
	c := newTestClient(p, Config{Retries: 1, CallsPerMinute: 15}, clock)

	if _, err := c.Execute(context.Background(), "prompt", Params{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("expected a retry after the parse failure, got %d calls", p.calls)
	}
}

// A reply parsing to a non-object value fails the attempt rather than
// returning garbage.
func TestExecuteRejectsNonObjectReply(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{clock: clock, replies: []string{`[1, 2, 3]`}}
	c := newTestClient(p, Config{Retries: 0, CallsPerMinute: 15}, clock)

	if _, err := c.Execute(context.Background(), "prompt", Params{}); err == nil {
		t.Fatalf("expected a parse failure for a JSON array reply")
	}
}

// No trailing one-minute window may see more dispatches than the budget.
func TestRateWindowInvariant(t *testing.T) {
	const limit = 5
	const total = 20

	clock := newFakeClock()
	replies := make([]string, total)
	for i := range replies {
		replies[i] = `{"n": 1}`
	}
	p := &scriptedProvider{clock: clock, replies: replies}
	c := newTestClient(p, Config{Retries: 0, CallsPerMinute: limit}, clock)

	for i := 0; i < total; i++ {
		if _, err := c.Execute(context.Background(), "prompt", Params{}); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if p.calls != total {
		t.Fatalf("expected %d dispatches, got %d", total, p.calls)
	}

	for i, start := range p.times {
		count := 0
		for _, ts := range p.times {
			if !ts.Before(start) && ts.Sub(start) < time.Minute {
				count++
			}
		}
		if count > limit {
			t.Fatalf("window starting at dispatch %d saw %d calls, budget is %d", i, count, limit)
		}
	}
}

// The rate-limit wait is at least the time for the oldest call to age out.
func TestRateLimitWaitCoversOldestCall(t *testing.T) {
	clock := newFakeClock()
	replies := []string{`{"n": 1}`, `{"n": 2}`, `{"n": 3}`}
	p := &scriptedProvider{clock: clock, replies: replies}
	c := newTestClient(p, Config{Retries: 0, CallsPerMinute: 2}, clock)

	for i := 0; i < 3; i++ {
		if _, err := c.Execute(context.Background(), "prompt", Params{}); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("expected exactly one rate-limit sleep, got %v", clock.sleeps)
	}
	if clock.sleeps[0] < time.Minute {
		t.Fatalf("expected the wait to cover the full window, got %v", clock.sleeps[0])
	}
}

// A canceled context stops the loop before any dispatch.
func TestExecuteHonorsCancellation(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{clock: clock, replies: []string{`{"a": 1}`}}
	c := newTestClient(p, Config{Retries: 3, CallsPerMinute: 15}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Execute(ctx, "prompt", Params{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.calls != 0 {
		t.Fatalf("expected no dispatches after cancellation, got %d", p.calls)
	}
}

// Ping reports the status the model returned and tolerates format drift.
func TestPing(t *testing.T) {
	clock := newFakeClock()

	p := &scriptedProvider{clock: clock, replies: []string{"```json\n{\"status\": \"ok\"}\n```"}}
	status, err := Ping(context.Background(), p, "m")
	if err != nil || status != "ok" {
		t.Fatalf("expected ok status, got %q %v", status, err)
	}

	p = &scriptedProvider{clock: clock, replies: []string{"sure, everything works"}}
	status, err = Ping(context.Background(), p, "m")
	if err != nil || status != "" {
		t.Fatalf("expected tolerated format drift, got %q %v", status, err)
	}

	p = &scriptedProvider{clock: clock, errs: []error{errors.New("401 unauthorized")}}
	if _, err := Ping(context.Background(), p, "m"); err == nil {
		t.Fatalf("expected transport errors to surface")
	}
}
