package book

import (
	"sort"
	"strings"
)

// Content item types.
const (
	ItemIntro = "intro"
	ItemPoint = "point"
)

// ErrorMarker tags item text that records a failed generation attempt.
// Entries beginning with it are treated as absent when deciding what is
// already done and what earlier text may feed later prompts.
const ErrorMarker = "ERROR:"

// ContentBook is the output tree: generated prose grouped into parts and
// sequentially numbered chapters.
type ContentBook struct {
	Title        string        `json:"bookTitle"`
	OutlineModel string        `json:"generation_model_outline"`
	ContentModel string        `json:"generation_model_content"`
	GeneratedAt  string        `json:"generation_timestamp"`
	Parts        []ContentPart `json:"parts"`
}

// ContentPart mirrors an input part. Number is a stable label like "P1".
type ContentPart struct {
	Number   string           `json:"part_number"`
	Name     string           `json:"name"`
	Chapters []ContentChapter `json:"chapters"`
}

// ContentChapter holds the generated items for one outline section. Chapters
// are numbered sequentially within their part.
type ContentChapter struct {
	Number  int           `json:"chapter_number"`
	Title   string        `json:"title"`
	Content []ContentItem `json:"content"`
}

// ContentItem is one generated passage. Number is "<chapter>.<slot>" where
// slot 1 is the introduction and later slots follow the outline points.
type ContentItem struct {
	Number        string `json:"item_number"`
	Type          string `json:"type"`
	Text          string `json:"text"`
	OriginalPoint string `json:"original_point,omitempty"`
}

// HasText reports whether the item holds usable generated text, meaning a
// non-empty body that does not record a failed attempt.
func (it ContentItem) HasText() bool {
	return it.Text != "" && !strings.HasPrefix(it.Text, ErrorMarker)
}

// Part returns the part with the given name, if present.
func (b *ContentBook) Part(name string) (*ContentPart, bool) {
	for i := range b.Parts {
		if b.Parts[i].Name == name {
			return &b.Parts[i], true
		}
	}
	return nil, false
}

// SortAll orders every part's chapters by number and every chapter's items
// by numeric item number.
func (b *ContentBook) SortAll() {
	for i := range b.Parts {
		b.Parts[i].SortChapters()
		for j := range b.Parts[i].Chapters {
			b.Parts[i].Chapters[j].SortItems()
		}
	}
}

// Chapter returns the chapter with the given title, if present.
func (p *ContentPart) Chapter(title string) (*ContentChapter, bool) {
	for i := range p.Chapters {
		if p.Chapters[i].Title == title {
			return &p.Chapters[i], true
		}
	}
	return nil, false
}

// SortChapters orders the part's chapters by chapter number.
func (p *ContentPart) SortChapters() {
	sort.SliceStable(p.Chapters, func(i, j int) bool {
		return p.Chapters[i].Number < p.Chapters[j].Number
	})
}

// Item returns the entry with the given item number string, if present.
func (c *ContentChapter) Item(number string) (*ContentItem, bool) {
	for i := range c.Content {
		if c.Content[i].Number == number {
			return &c.Content[i], true
		}
	}
	return nil, false
}

// SortItems orders the chapter's items by numeric item number. Ties and
// unparseable numbers keep their insertion order.
func (c *ContentChapter) SortItems() {
	sort.SliceStable(c.Content, func(i, j int) bool {
		return NumberValue(c.Content[i].Number) < NumberValue(c.Content[j].Number)
	})
}

// ReplaceItem drops any existing entry with the same item number, appends
// the new one, and re-sorts. A retried unit therefore overwrites its earlier
// attempt instead of duplicating it.
func (c *ContentChapter) ReplaceItem(it ContentItem) {
	kept := c.Content[:0]
	for _, cur := range c.Content {
		if cur.Number != it.Number {
			kept = append(kept, cur)
		}
	}
	c.Content = append(kept, it)
	c.SortItems()
}
