package report

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingReporter struct {
	NoopReporter
	events []string
}

func (r *recordingReporter) OnUnitDone(_ context.Context, _, key string, outcome Outcome, _ error, _ time.Duration) {
	r.events = append(r.events, key+":"+string(outcome))
}

// NewCompositeReporter collapses to the cheapest shape that still works.
func TestNewCompositeReporterShapes(t *testing.T) {
	if _, ok := NewCompositeReporter().(NoopReporter); !ok {
		t.Fatalf("expected NoopReporter for zero reporters")
	}
	if _, ok := NewCompositeReporter(nil, nil).(NoopReporter); !ok {
		t.Fatalf("expected NoopReporter when all entries are nil")
	}

	single := &recordingReporter{}
	if got := NewCompositeReporter(nil, single); got != Reporter(single) {
		t.Fatalf("expected the single survivor itself, got %T", got)
	}

	if _, ok := NewCompositeReporter(&recordingReporter{}, &recordingReporter{}).(*CompositeReporter); !ok {
		t.Fatalf("expected a composite for two reporters")
	}
}

// Events fan out to every member in order.
func TestCompositeFanOut(t *testing.T) {
	a := &recordingReporter{}
	b := &recordingReporter{}
	c := NewCompositeReporter(a, b)

	c.OnUnitDone(context.Background(), "outline", "p0-ch0", OutcomeSuccess, nil, time.Second)
	c.OnUnitDone(context.Background(), "outline", "p0-ch1", OutcomeFailed, errors.New("boom"), 0)

	for _, r := range []*recordingReporter{a, b} {
		if len(r.events) != 2 {
			t.Fatalf("expected both events delivered, got %v", r.events)
		}
		if r.events[0] != "p0-ch0:success" || r.events[1] != "p0-ch1:failed" {
			t.Fatalf("unexpected event order: %v", r.events)
		}
	}
}

// RunMetrics buckets outcomes and accumulates provider time.
func TestRunMetricsCounts(t *testing.T) {
	ctx := context.Background()
	var m RunMetrics

	m.OnUnitDone(ctx, "content", "a", OutcomeSuccess, nil, 2*time.Second)
	m.OnUnitDone(ctx, "content", "b", OutcomeSuccess, nil, time.Second)
	m.OnUnitDone(ctx, "content", "c", OutcomeWarning, nil, 0)
	m.OnUnitDone(ctx, "content", "d", OutcomeSkipped, nil, 0)
	m.OnUnitDone(ctx, "content", "e", OutcomeFailed, errors.New("x"), time.Second)
	m.OnRetry(ctx, 2, 4, time.Second)
	m.OnRetry(ctx, 3, 4, 2*time.Second)
	m.OnRateLimitWait(ctx, 30*time.Second)

	snap := m.Snapshot()
	if snap.UnitsSucceeded != 2 || snap.UnitsWarned != 1 || snap.UnitsSkipped != 1 || snap.UnitsFailed != 1 {
		t.Fatalf("unexpected unit counts: %+v", snap)
	}
	if snap.Retries != 2 || snap.RateLimitWaits != 1 {
		t.Fatalf("unexpected retry accounting: %+v", snap)
	}
	if snap.ProviderTime != 4*time.Second {
		t.Fatalf("expected 4s of provider time, got %v", snap.ProviderTime)
	}
}

// A metrics reporter can ride along inside a composite.
func TestMetricsInsideComposite(t *testing.T) {
	var m RunMetrics
	c := NewCompositeReporter(NoopReporter{}, &m)

	c.OnStageStart(context.Background(), "outline", 3, 5)
	c.OnUnitDone(context.Background(), "outline", "k", OutcomeSuccess, nil, 0)

	if m.Snapshot().UnitsSucceeded != 1 {
		t.Fatalf("expected the composite to reach the metrics reporter")
	}
}
