package bookgen

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Defaults must validate, or every zero-setup caller breaks.
func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Fatalf("unexpected default model %q", cfg.Model)
	}
	if cfg.Retries != 3 || cfg.CallsPerMinute != 15 {
		t.Fatalf("unexpected default pacing: retries=%d calls=%d", cfg.Retries, cfg.CallsPerMinute)
	}
	if cfg.BackoffCap() != 30*time.Second {
		t.Fatalf("BackoffCap() = %v, want 30s", cfg.BackoffCap())
	}
	if cfg.RequestTimeout() != 2*time.Minute {
		t.Fatalf("RequestTimeout() = %v, want 2m", cfg.RequestTimeout())
	}
}

func TestLoadConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") = %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("LoadConfig(\"\") = %+v, want defaults", cfg)
	}
}

// A config file only needs the keys it changes.
func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookgen.yaml")
	data := "model: gemini-2.5-pro\nretries: 5\ncontext_budget: 1000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}
	if cfg.Model != "gemini-2.5-pro" || cfg.Retries != 5 || cfg.ContextBudget != 1000 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CallsPerMinute != 15 || cfg.OutlineMaxTokens != 8192 {
		t.Fatalf("untouched keys must keep defaults: %+v", cfg)
	}
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should be an error")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unparseable YAML should be an error")
	}

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(path, []byte("retries: -2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("invalid settings should fail validation")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no model anywhere", func(c *Config) { c.Model = "" }},
		{"negative retries", func(c *Config) { c.Retries = -1 }},
		{"zero call budget", func(c *Config) { c.CallsPerMinute = 0 }},
		{"zero token limit", func(c *Config) { c.ContentMaxTokens = 0 }},
		{"negative context budget", func(c *Config) { c.ContextBudget = -5 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: Validate() accepted %+v", tc.name, cfg)
		}
	}
}

// Stage models fall back to the general model only when unset.
func TestModelResolution(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.OutlineModelName() != cfg.Model || cfg.ContentModelName() != cfg.Model {
		t.Fatalf("unset stage models must fall back to %q", cfg.Model)
	}

	cfg.OutlineModel = "gemini-2.5-pro"
	if cfg.OutlineModelName() != "gemini-2.5-pro" {
		t.Fatalf("OutlineModelName() = %q", cfg.OutlineModelName())
	}
	if cfg.ContentModelName() != cfg.Model {
		t.Fatalf("ContentModelName() = %q, want fallback", cfg.ContentModelName())
	}

	// Per-stage models with no general model is a valid combination.
	cfg = DefaultConfig()
	cfg.Model = ""
	cfg.OutlineModel = "a"
	cfg.ContentModel = "b"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}
