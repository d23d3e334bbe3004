package stage

import (
	"strings"

	"github.com/isauravmanitripathi/json-book-sub001/pkg/book"
)

const (
	trimMarker = "... (trimmed) ...\n"

	// boundaryWindow is how far past the exact cut point TrimToBudget looks
	// for a clean break.
	boundaryWindow = 100
)

// PrecedingContext gathers the text of every usable item in ch whose number
// sorts strictly below current, in ascending order, joined with separators,
// and trimmed to at most budget characters keeping the most recent text.
// Items with unparseable numbers are left out entirely.
func PrecedingContext(ch *book.ContentChapter, current string, budget int) string {
	cur := book.NumberValue(current)
	ch.SortItems()

	var parts []string
	for _, it := range ch.Content {
		if !it.HasText() {
			continue
		}
		v, err := book.ParseNumber(it.Number)
		if err != nil {
			continue
		}
		if v < cur {
			parts = append(parts, it.Text)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return TrimToBudget(strings.Join(parts, "\n\n---\n\n"), budget)
}

// TrimToBudget cuts text down to at most max characters, keeping the tail.
// The cut prefers the nearest paragraph break, then a sentence break, within
// a window after the exact cut point, so the kept text starts cleanly. The
// result is prefixed with a marker and never exceeds max. Non-positive max
// disables trimming.
func TrimToBudget(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	body := max - len(trimMarker)
	if body < 1 {
		return text[len(text)-max:]
	}

	start := len(text) - body
	hi := start + boundaryWindow
	if hi > len(text) {
		hi = len(text)
	}
	zone := text[start:hi]
	if i := strings.Index(zone, "\n"); i != -1 {
		start += i + 1
	} else if i := strings.Index(zone, ". "); i != -1 {
		start += i + 2
	}
	return trimMarker + strings.TrimSpace(text[start:])
}
