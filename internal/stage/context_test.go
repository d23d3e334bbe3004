package stage

import (
	"strings"
	"testing"

	"github.com/isauravmanitripathi/json-book-sub001/pkg/book"
)

func contextChapter() *book.ContentChapter {
	return &book.ContentChapter{
		Number: 1,
		Title:  "Sec One",
		Content: []book.ContentItem{
			{Number: "1.1", Type: book.ItemIntro, Text: "intro text"},
			{Number: "1.2", Type: book.ItemPoint, Text: "alpha"},
			{Number: "1.3", Type: book.ItemPoint, Text: "ERROR: Generation failed. 503"},
			{Number: "oops", Type: book.ItemPoint, Text: "unnumbered noise"},
			{Number: "1.4", Type: book.ItemPoint, Text: "beta"},
		},
	}
}

// Context carries only usable items strictly below the current number.
func TestPrecedingContextGathersUsableItems(t *testing.T) {
	got := PrecedingContext(contextChapter(), "1.4", 0)
	want := "intro text\n\n---\n\nalpha"
	if got != want {
		t.Fatalf("PrecedingContext = %q, want %q", got, want)
	}
}

// The item being generated contributes nothing to its own context.
func TestPrecedingContextExcludesCurrentAndLater(t *testing.T) {
	got := PrecedingContext(contextChapter(), "1.2", 0)
	if got != "intro text" {
		t.Fatalf("PrecedingContext = %q, want %q", got, "intro text")
	}
}

func TestPrecedingContextEmptyCases(t *testing.T) {
	if got := PrecedingContext(contextChapter(), "1.1", 0); got != "" {
		t.Fatalf("first item should have no context, got %q", got)
	}
	if got := PrecedingContext(contextChapter(), "bogus", 0); got != "" {
		t.Fatalf("unparseable current number should yield no context, got %q", got)
	}
	empty := &book.ContentChapter{Number: 2, Title: "Empty"}
	if got := PrecedingContext(empty, "2.5", 0); got != "" {
		t.Fatalf("empty chapter should yield no context, got %q", got)
	}
}

// Items are joined in ascending numeric order regardless of storage order.
func TestPrecedingContextSortsBeforeJoining(t *testing.T) {
	ch := &book.ContentChapter{
		Number: 1,
		Content: []book.ContentItem{
			{Number: "1.3", Text: "third"},
			{Number: "1.1", Text: "first"},
			{Number: "1.2", Text: "second"},
		},
	}
	got := PrecedingContext(ch, "1.9", 0)
	want := "first\n\n---\n\nsecond\n\n---\n\nthird"
	if got != want {
		t.Fatalf("PrecedingContext = %q, want %q", got, want)
	}
}

func TestTrimToBudgetNoop(t *testing.T) {
	if got := TrimToBudget("short", 100); got != "short" {
		t.Fatalf("text under budget must pass through, got %q", got)
	}
	long := strings.Repeat("z", 500)
	if got := TrimToBudget(long, 0); got != long {
		t.Fatalf("zero budget disables trimming")
	}
	if got := TrimToBudget(long, -1); got != long {
		t.Fatalf("negative budget disables trimming")
	}
}

// A paragraph break inside the search window beats a sentence break.
func TestTrimToBudgetPrefersParagraphBoundary(t *testing.T) {
	text := "AAAAAAAAAAAAAAAAAAAA BBB. C\nDDDDDDD"
	got := TrimToBudget(text, 30)
	want := trimMarker + "DDDDDDD"
	if got != want {
		t.Fatalf("TrimToBudget = %q, want %q", got, want)
	}
}

func TestTrimToBudgetFallsBackToSentenceBoundary(t *testing.T) {
	text := "AAAAAAAAAAAAAAAAAAAAAA. BBBBBBBB"
	got := TrimToBudget(text, 30)
	want := trimMarker + "BBBBBBBB"
	if got != want {
		t.Fatalf("TrimToBudget = %q, want %q", got, want)
	}
}

func TestTrimToBudgetHardCutWithoutBoundary(t *testing.T) {
	text := strings.Repeat("x", 40)
	got := TrimToBudget(text, 30)
	want := trimMarker + strings.Repeat("x", 30-len(trimMarker))
	if got != want {
		t.Fatalf("TrimToBudget = %q, want %q", got, want)
	}
	if len(got) != 30 {
		t.Fatalf("hard cut should land exactly on budget, len = %d", len(got))
	}
}

// Budgets smaller than the marker keep a raw tail instead.
func TestTrimToBudgetTinyBudget(t *testing.T) {
	text := strings.Repeat("y", 40)
	got := TrimToBudget(text, 10)
	if got != strings.Repeat("y", 10) {
		t.Fatalf("TrimToBudget = %q, want 10 trailing bytes", got)
	}
}

// The documented contract: never longer than the budget, marker first,
// and the kept text is a clean suffix of the original.
func TestTrimToBudgetContract(t *testing.T) {
	paragraph := strings.Repeat("a", 79) + "\n"
	text := strings.Repeat(paragraph, 63) // 5040 chars of newline-separated lines

	got := TrimToBudget(text, 2500)
	if len(got) > 2500 {
		t.Fatalf("result exceeds budget: %d > 2500", len(got))
	}
	if !strings.HasPrefix(got, trimMarker) {
		t.Fatalf("trimmed result must start with the marker, got %q", got[:20])
	}
	kept := strings.TrimPrefix(got, trimMarker)
	if !strings.HasSuffix(strings.TrimSpace(text), kept) {
		t.Fatalf("kept text must be a suffix of the original")
	}
	idx := strings.LastIndex(text, kept)
	if idx < 1 || text[idx-1] != '\n' {
		t.Fatalf("kept text should start right after a paragraph break")
	}
}
