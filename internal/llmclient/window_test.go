package llmclient

import (
	"testing"
	"time"
)

// Entries age out exactly at the span boundary.
func TestWindowPrune(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(10, time.Minute)
	w.Record(base)
	w.Record(base.Add(10 * time.Second))
	w.Record(base.Add(59 * time.Second))

	w.Prune(base.Add(59 * time.Second))
	if w.Len() != 3 {
		t.Fatalf("expected nothing pruned before the boundary, got %d", w.Len())
	}

	w.Prune(base.Add(60 * time.Second))
	if w.Len() != 2 {
		t.Fatalf("expected the first entry gone at exactly one span, got %d", w.Len())
	}

	w.Prune(base.Add(5 * time.Minute))
	if w.Len() != 0 {
		t.Fatalf("expected an empty window, got %d", w.Len())
	}
}

// NextFree measures the time until the oldest entry leaves the window.
func TestWindowNextFree(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(2, time.Minute)
	if got := w.NextFree(base); got != 0 {
		t.Fatalf("empty window should be free now, got %v", got)
	}

	w.Record(base)
	w.Record(base.Add(20 * time.Second))
	if !w.Full() {
		t.Fatalf("expected a full window at the limit")
	}
	if got := w.NextFree(base.Add(30 * time.Second)); got != 30*time.Second {
		t.Fatalf("expected 30s until the oldest call ages out, got %v", got)
	}
	if got := w.NextFree(base.Add(2 * time.Minute)); got != 0 {
		t.Fatalf("expected zero once the span has passed, got %v", got)
	}
}

// Degenerate construction arguments fall back to safe values.
func TestWindowDefaults(t *testing.T) {
	w := NewWindow(0, 0)
	if w.limit != 1 || w.span != time.Minute {
		t.Fatalf("expected fallback to one call per minute, got limit=%d span=%v", w.limit, w.span)
	}
}
