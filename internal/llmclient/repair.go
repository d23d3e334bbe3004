package llmclient

import (
	"regexp"
	"strings"
)

var (
	fenceOpen     = regexp.MustCompile("(?i)^```(json)?[ \t\r\n]*")
	fenceClose    = regexp.MustCompile("[ \t\r\n]*```$")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// Repair normalizes a raw model reply into its best-effort JSON object text.
// The transformations run in a fixed order:
//
//  1. trim surrounding whitespace; a blank reply becomes "{}"
//  2. strip Markdown code fences from both ends
//  3. clip to the outermost '{' .. '}' pair, when both exist in order
//  4. remove trailing commas before a closing brace or bracket
//  5. append missing closing braces when opens outnumber closes
//
// Excess closing braces are never removed since the surplus may be inside a
// string literal. The second return value reports that case so callers can
// treat the payload as likely malformed.
func Repair(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "{}", false
	}

	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || start >= end {
		return s, false
	}
	s = s[start : end+1]

	s = trailingComma.ReplaceAllString(s, "$1")

	opens := strings.Count(s, "{")
	closes := strings.Count(s, "}")
	switch {
	case opens > closes:
		s += strings.Repeat("}", opens-closes)
	case closes > opens:
		return s, true
	}
	return s, false
}
