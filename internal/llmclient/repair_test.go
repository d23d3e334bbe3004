package llmclient

import (
	"encoding/json"
	"testing"
)

// A fenced reply with a missing closing brace must come back parseable.
func TestRepairFencedAndUnbalanced(t *testing.T) {
	raw := "```json\n{\"a\": {\"b\": 1}\n```"
	fixed, malformed := Repair(raw)
	if malformed {
		t.Fatalf("expected no excess-closer flag")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(fixed), &obj); err != nil {
		t.Fatalf("repaired text should parse, got %v for %q", err, fixed)
	}
	inner, ok := obj["a"].(map[string]any)
	if !ok || inner["b"] != float64(1) {
		t.Fatalf("unexpected parsed structure: %v", obj)
	}
}

// Fence stripping is case-insensitive and works without the json tag.
func TestRepairFenceVariants(t *testing.T) {
	for _, raw := range []string{
		"```JSON\n{\"x\": 1}\n```",
		"```\n{\"x\": 1}\n```",
		"{\"x\": 1}",
	} {
		fixed, _ := Repair(raw)
		if fixed != "{\"x\": 1}" {
			t.Fatalf("Repair(%q): expected bare object, got %q", raw, fixed)
		}
	}
}

// Surrounding prose is clipped to the outermost brace pair.
func TestRepairClipsProse(t *testing.T) {
	fixed, _ := Repair("Here is the JSON you asked for: {\"a\": 1} Hope that helps!")
	if fixed != "{\"a\": 1}" {
		t.Fatalf("expected clipped object, got %q", fixed)
	}
}

// Trailing commas before closers are removed in both objects and arrays.
func TestRepairTrailingCommas(t *testing.T) {
	fixed, _ := Repair(`{"a": [1, 2,], "b": {"c": 3,},}`)
	var obj map[string]any
	if err := json.Unmarshal([]byte(fixed), &obj); err != nil {
		t.Fatalf("expected parseable output, got %v for %q", err, fixed)
	}
	if len(obj["a"].([]any)) != 2 {
		t.Fatalf("unexpected array contents: %v", obj["a"])
	}
}

// Blank input becomes an empty object rather than a parse error downstream.
func TestRepairBlankInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\t"} {
		fixed, malformed := Repair(raw)
		if fixed != "{}" || malformed {
			t.Fatalf("Repair(%q): expected {} with no flag, got %q %v", raw, fixed, malformed)
		}
	}
}

// Excess closing braces are flagged, never deleted.
func TestRepairExcessClosers(t *testing.T) {
	fixed, malformed := Repair(`{"a": 1}}`)
	if !malformed {
		t.Fatalf("expected the excess-closer flag")
	}
	if fixed != `{"a": 1}}` {
		t.Fatalf("expected text untouched, got %q", fixed)
	}
}

// Text without a brace pair is returned cleaned but unclipped.
func TestRepairNoObject(t *testing.T) {
	fixed, malformed := Repair("  the model refused to answer  ")
	if fixed != "the model refused to answer" || malformed {
		t.Fatalf("unexpected result: %q %v", fixed, malformed)
	}

	// A closing brace before the first opening brace is not a pair.
	fixed, _ = Repair("} nonsense {")
	if fixed != "} nonsense {" {
		t.Fatalf("expected inverted braces left alone, got %q", fixed)
	}
}

// Deeply nested objects get every missing closer appended.
func TestRepairAppendsAllMissingBraces(t *testing.T) {
	fixed, _ := Repair(`{"a": {"b": {"c": 1}`)
	var obj map[string]any
	if err := json.Unmarshal([]byte(fixed), &obj); err != nil {
		t.Fatalf("expected balanced output, got %v for %q", err, fixed)
	}
}
