package llmclient

import "time"

// Window is a sliding record of recent call times used to enforce a
// per-span call budget. It is not safe for concurrent use; the pipeline
// issues calls from a single goroutine.
type Window struct {
	limit int
	span  time.Duration
	calls []time.Time
}

// NewWindow returns a window allowing limit calls per span. Non-positive
// arguments fall back to one call and one minute.
func NewWindow(limit int, span time.Duration) *Window {
	if limit < 1 {
		limit = 1
	}
	if span <= 0 {
		span = time.Minute
	}
	return &Window{limit: limit, span: span}
}

// Prune drops entries that have aged out of the span as of now.
func (w *Window) Prune(now time.Time) {
	i := 0
	for i < len(w.calls) && now.Sub(w.calls[i]) >= w.span {
		i++
	}
	w.calls = w.calls[i:]
}

// Full reports whether the window has reached its call budget.
func (w *Window) Full() bool {
	return len(w.calls) >= w.limit
}

// NextFree returns how long until the oldest tracked call ages out.
func (w *Window) NextFree(now time.Time) time.Duration {
	if len(w.calls) == 0 {
		return 0
	}
	d := w.span - now.Sub(w.calls[0])
	if d < 0 {
		return 0
	}
	return d
}

// Record appends a call timestamp. Callers record before dispatching so a
// hung request still counts against the budget.
func (w *Window) Record(now time.Time) {
	w.calls = append(w.calls, now)
}

// Len returns the number of tracked calls.
func (w *Window) Len() int {
	return len(w.calls)
}
