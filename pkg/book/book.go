// Package book defines the document trees the generator works on: the input
// structure of parts and chapters, the outline each chapter gains during the
// first stage, and the content tree the second stage fills in.
package book

import (
	"strconv"
	"strings"
)

// Book is the input document: a titled collection of parts, each holding
// chapters to be outlined and then written.
type Book struct {
	Title string `json:"bookTitle"`
	Parts []Part `json:"parts"`
}

// Part groups chapters under a named division of the book.
type Part struct {
	Name     string    `json:"name"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter is one unit of the input tree. Outline is nil until the outline
// stage has visited it.
type Chapter struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Outline     *Outline `json:"generated_outline,omitempty"`
}

// Outline is the writing guide generated for a chapter. A non-empty Error
// marks the outline as unusable; the content stage skips such chapters.
type Outline struct {
	TitleSuggestion string    `json:"chapter_title_suggestion,omitempty"`
	Error           string    `json:"error,omitempty"`
	Sections        []Section `json:"writing_sections"`
}

// Usable reports whether the outline exists and carries no error note.
func (o *Outline) Usable() bool {
	return o != nil && o.Error == ""
}

// Section is one planned slice of a chapter: a title, the points the text
// must cover, and optional research terms carried through from the model.
type Section struct {
	Title       string   `json:"section_title"`
	Points      []string `json:"content_points_to_cover"`
	SearchTerms []string `json:"Google Search_terms,omitempty"`
}

// ParseNumber converts an item number such as "3.2" to its numeric value.
func ParseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// NumberValue is ParseNumber with unparseable input sorting first as zero.
func NumberValue(s string) float64 {
	v, err := ParseNumber(s)
	if err != nil {
		return 0
	}
	return v
}
