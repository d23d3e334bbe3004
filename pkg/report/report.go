// Package report defines the progress-reporting hooks the generation
// pipeline emits as it works through a run.
package report

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Outcome classifies how a unit of work ended.
type Outcome string

const (
	// OutcomeSuccess means the unit produced usable output.
	OutcomeSuccess Outcome = "success"
	// OutcomeWarning means the unit completed but with degraded output,
	// such as an empty reply recorded as a placeholder.
	OutcomeWarning Outcome = "warning"
	// OutcomeSkipped means the unit was already done or not eligible.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the unit ended in error and stays pending.
	OutcomeFailed Outcome = "failed"
)

// Reporter receives lifecycle events during a generation run.
//
// Implementations should be fast and non-blocking since they run inline
// with unit processing.
type Reporter interface {
	// OnStageStart is called once per stage with the number of units still
	// pending and the total the stage covers.
	OnStageStart(ctx context.Context, stage string, pending, total int)

	// OnUnitStart is called before a unit is attempted.
	OnUnitStart(ctx context.Context, stage, key, title string)

	// OnUnitDone is called after a unit settles. err is nil unless the
	// outcome is OutcomeFailed. d is the provider call duration and is zero
	// for units that never reached the provider.
	OnUnitDone(ctx context.Context, stage, key string, outcome Outcome, err error, d time.Duration)

	// OnStageDone is called once per stage. ok is false when any unit failed.
	OnStageDone(ctx context.Context, stage string, ok bool)

	// OnRateLimitWait is called before the client sleeps to respect the
	// per-minute call budget.
	OnRateLimitWait(ctx context.Context, wait time.Duration)

	// OnRetry is called before a backoff sleep ahead of attempt (1-based
	// attempt numbers, attempt > 1).
	OnRetry(ctx context.Context, attempt, maxAttempts int, delay time.Duration)
}

// NoopReporter ignores all events. Embed it to implement only the hooks
// you care about.
type NoopReporter struct{}

func (NoopReporter) OnStageStart(context.Context, string, int, int)                            {}
func (NoopReporter) OnUnitStart(context.Context, string, string, string)                       {}
func (NoopReporter) OnUnitDone(context.Context, string, string, Outcome, error, time.Duration) {}
func (NoopReporter) OnStageDone(context.Context, string, bool)                                 {}
func (NoopReporter) OnRateLimitWait(context.Context, time.Duration)                            {}
func (NoopReporter) OnRetry(context.Context, int, int, time.Duration)                          {}

// CompositeReporter fans every event out to multiple reporters in order.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter builds a reporter that forwards to all of the given
// reporters. Nil entries are dropped; with zero survivors a NoopReporter is
// returned, with one the reporter itself.
func NewCompositeReporter(reporters ...Reporter) Reporter {
	kept := make([]Reporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			kept = append(kept, r)
		}
	}
	switch len(kept) {
	case 0:
		return NoopReporter{}
	case 1:
		return kept[0]
	default:
		return &CompositeReporter{reporters: kept}
	}
}

func (c *CompositeReporter) OnStageStart(ctx context.Context, stage string, pending, total int) {
	for _, r := range c.reporters {
		r.OnStageStart(ctx, stage, pending, total)
	}
}

func (c *CompositeReporter) OnUnitStart(ctx context.Context, stage, key, title string) {
	for _, r := range c.reporters {
		r.OnUnitStart(ctx, stage, key, title)
	}
}

func (c *CompositeReporter) OnUnitDone(ctx context.Context, stage, key string, outcome Outcome, err error, d time.Duration) {
	for _, r := range c.reporters {
		r.OnUnitDone(ctx, stage, key, outcome, err, d)
	}
}

func (c *CompositeReporter) OnStageDone(ctx context.Context, stage string, ok bool) {
	for _, r := range c.reporters {
		r.OnStageDone(ctx, stage, ok)
	}
}

func (c *CompositeReporter) OnRateLimitWait(ctx context.Context, wait time.Duration) {
	for _, r := range c.reporters {
		r.OnRateLimitWait(ctx, wait)
	}
}

func (c *CompositeReporter) OnRetry(ctx context.Context, attempt, maxAttempts int, delay time.Duration) {
	for _, r := range c.reporters {
		r.OnRetry(ctx, attempt, maxAttempts, delay)
	}
}

// LoggingReporter writes events through slog.
type LoggingReporter struct {
	Logger *slog.Logger
}

// NewLoggingReporter creates a LoggingReporter. If logger is nil the default
// slog logger is used.
func NewLoggingReporter(logger *slog.Logger) *LoggingReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingReporter{Logger: logger}
}

func (l *LoggingReporter) OnStageStart(ctx context.Context, stage string, pending, total int) {
	l.Logger.InfoContext(ctx, "stage_start",
		slog.String("stage", stage),
		slog.Int("pending", pending),
		slog.Int("total", total))
}

func (l *LoggingReporter) OnUnitStart(ctx context.Context, stage, key, title string) {
	l.Logger.DebugContext(ctx, "unit_start",
		slog.String("stage", stage),
		slog.String("key", key),
		slog.String("title", title))
}

func (l *LoggingReporter) OnUnitDone(ctx context.Context, stage, key string, outcome Outcome, err error, d time.Duration) {
	level := slog.LevelInfo
	switch outcome {
	case OutcomeFailed:
		level = slog.LevelError
	case OutcomeWarning:
		level = slog.LevelWarn
	case OutcomeSkipped:
		level = slog.LevelDebug
	}
	attrs := []any{
		slog.String("stage", stage),
		slog.String("key", key),
		slog.String("outcome", string(outcome)),
		slog.Duration("duration", d),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.Logger.Log(ctx, level, "unit_done", attrs...)
}

func (l *LoggingReporter) OnStageDone(ctx context.Context, stage string, ok bool) {
	level := slog.LevelInfo
	if !ok {
		level = slog.LevelError
	}
	l.Logger.Log(ctx, level, "stage_done",
		slog.String("stage", stage),
		slog.Bool("ok", ok))
}

func (l *LoggingReporter) OnRateLimitWait(ctx context.Context, wait time.Duration) {
	l.Logger.WarnContext(ctx, "rate_limit_wait",
		slog.Duration("wait", wait))
}

func (l *LoggingReporter) OnRetry(ctx context.Context, attempt, maxAttempts int, delay time.Duration) {
	l.Logger.WarnContext(ctx, "retry_backoff",
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.Duration("delay", delay))
}

// RunMetrics counts events with atomic counters. The zero value is ready to
// use and safe for concurrent reporters.
type RunMetrics struct {
	NoopReporter

	unitsSucceeded atomic.Int64
	unitsWarned    atomic.Int64
	unitsSkipped   atomic.Int64
	unitsFailed    atomic.Int64
	retries        atomic.Int64
	rateLimitWaits atomic.Int64
	providerNanos  atomic.Int64
}

func (m *RunMetrics) OnUnitDone(_ context.Context, _, _ string, outcome Outcome, _ error, d time.Duration) {
	switch outcome {
	case OutcomeSuccess:
		m.unitsSucceeded.Add(1)
	case OutcomeWarning:
		m.unitsWarned.Add(1)
	case OutcomeSkipped:
		m.unitsSkipped.Add(1)
	case OutcomeFailed:
		m.unitsFailed.Add(1)
	}
	m.providerNanos.Add(int64(d))
}

func (m *RunMetrics) OnRetry(context.Context, int, int, time.Duration) {
	m.retries.Add(1)
}

func (m *RunMetrics) OnRateLimitWait(context.Context, time.Duration) {
	m.rateLimitWaits.Add(1)
}

// RunMetricsSnapshot is a point-in-time copy of the counters.
type RunMetricsSnapshot struct {
	UnitsSucceeded int64
	UnitsWarned    int64
	UnitsSkipped   int64
	UnitsFailed    int64
	Retries        int64
	RateLimitWaits int64
	ProviderTime   time.Duration
}

// Snapshot returns the current counter values.
func (m *RunMetrics) Snapshot() RunMetricsSnapshot {
	return RunMetricsSnapshot{
		UnitsSucceeded: m.unitsSucceeded.Load(),
		UnitsWarned:    m.unitsWarned.Load(),
		UnitsSkipped:   m.unitsSkipped.Load(),
		UnitsFailed:    m.unitsFailed.Load(),
		Retries:        m.retries.Load(),
		RateLimitWaits: m.rateLimitWaits.Load(),
		ProviderTime:   time.Duration(m.providerNanos.Load()),
	}
}
