package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/isauravmanitripathi/json-book-sub001/pkg/report"
)

// Config controls retry and rate-limit behavior for a Client.
type Config struct {
	// Retries is the number of additional attempts after the first failure.
	// Negative values are treated as zero.
	Retries int

	// CallsPerMinute caps the calls dispatched inside any trailing
	// one-minute window, counting failed attempts.
	CallsPerMinute int

	// BackoffCap bounds the exponential retry delay. Zero means no cap.
	BackoffCap time.Duration
}

// Jitter bounds. Rate-limit waits get a small random pad past the point
// where the oldest call ages out; retry backoff gets up to a second so
// repeated failures do not land in lockstep.
const (
	rateJitterMin = 100 * time.Millisecond
	rateJitterMax = 500 * time.Millisecond
	retryJitter   = time.Second
)

// Client wraps a Provider with a shared sliding-window rate limit,
// exponential backoff, and JSON repair of replies. A single Client is meant
// to be reused across stages so the call budget covers the whole run. It is
// not safe for concurrent use.
type Client struct {
	provider Provider
	window   *Window
	cfg      Config
	reporter report.Reporter
	logger   *slog.Logger

	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
	randFloat func() float64
}

// New returns a Client with no reporter wired.
func New(provider Provider, cfg Config) *Client {
	return NewWithReporter(provider, cfg, nil)
}

// NewWithReporter returns a Client that announces rate-limit waits and retry
// backoffs to rep. A nil reporter is replaced with a no-op one.
func NewWithReporter(provider Provider, cfg Config, rep report.Reporter) *Client {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if rep == nil {
		rep = report.NoopReporter{}
	}
	return &Client{
		provider:  provider,
		window:    NewWindow(cfg.CallsPerMinute, time.Minute),
		cfg:       cfg,
		reporter:  rep,
		logger:    slog.Default(),
		now:       time.Now,
		sleep:     ctxSleep,
		randFloat: rand.Float64,
	}
}

// SetLogger replaces the logger used for attempt-level warnings.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Window exposes the shared call history, mainly for tests and diagnostics.
func (c *Client) Window() *Window {
	return c.window
}

// Execute runs one logical request: it waits for rate-limit capacity,
// applies retry backoff, dispatches through the provider, and repairs and
// parses the reply into a JSON object. Failed attempts, blocked prompts,
// empty replies, and unparseable replies all consume one attempt; the first
// clean parse returns immediately. Once the budget is exhausted the last
// attempt's error is returned wrapped.
func (c *Client) Execute(ctx context.Context, prompt string, p Params) (map[string]any, error) {
	maxAttempts := c.cfg.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := c.waitForCapacity(ctx); err != nil {
			return nil, err
		}
		if attempt > 1 {
			delay := c.backoff(attempt - 1)
			c.reporter.OnRetry(ctx, attempt, maxAttempts, delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		c.window.Record(c.now())

		raw, err := c.provider.Generate(ctx, prompt, p)
		if err != nil {
			lastErr = err
			c.logger.Warn("generation attempt failed",
				"attempt", attempt, "max_attempts", maxAttempts, "model", p.Model, "error", err)
			continue
		}
		if strings.TrimSpace(raw) == "" {
			lastErr = ErrEmptyReply
			c.logger.Warn("generation attempt returned no text",
				"attempt", attempt, "max_attempts", maxAttempts, "model", p.Model)
			continue
		}

		fixed, excessClosers := Repair(raw)
		if excessClosers {
			c.logger.Warn("reply has more closing braces than opening ones, parse will likely fail",
				"model", p.Model)
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(fixed), &record); err != nil {
			lastErr = fmt.Errorf("parse repaired reply: %w", err)
			c.logger.Warn("reply did not parse as a JSON object",
				"attempt", attempt, "max_attempts", maxAttempts, "error", err)
			continue
		}
		return record, nil
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}

// waitForCapacity blocks until the sliding window has room for one more
// call. The wait is sized so the oldest tracked call ages out, plus jitter.
func (c *Client) waitForCapacity(ctx context.Context) error {
	now := c.now()
	c.window.Prune(now)
	if !c.window.Full() {
		return nil
	}

	wait := c.window.NextFree(now) + c.jitter(rateJitterMin, rateJitterMax)
	c.reporter.OnRateLimitWait(ctx, wait)
	c.logger.Info("rate limit reached, waiting",
		"wait", wait, "window_calls", c.window.Len())
	if err := c.sleep(ctx, wait); err != nil {
		return err
	}
	c.window.Prune(c.now())
	return nil
}

// backoff computes the delay before retry n (n >= 1): 2^n seconds plus up
// to a second of jitter, bounded by the configured cap.
func (c *Client) backoff(n int) time.Duration {
	d := time.Duration(math.Pow(2, float64(n)) * float64(time.Second))
	d += time.Duration(c.randFloat() * float64(retryJitter))
	if c.cfg.BackoffCap > 0 && d > c.cfg.BackoffCap {
		d = c.cfg.BackoffCap
	}
	return d
}

func (c *Client) jitter(min, max time.Duration) time.Duration {
	return min + time.Duration(c.randFloat()*float64(max-min))
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
