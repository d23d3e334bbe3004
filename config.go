package bookgen

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/isauravmanitripathi/json-book-sub001/internal/llmclient"
)

// Config holds every tunable of a generation run. The zero value is not
// usable; start from DefaultConfig and override selectively, or load a
// YAML file with LoadConfig.
type Config struct {
	// Model is used by any stage without a dedicated override.
	Model        string `yaml:"model"`
	OutlineModel string `yaml:"outline_model"`
	ContentModel string `yaml:"content_model"`

	// Retries is the number of additional provider attempts after a
	// failed one, per logical request.
	Retries int `yaml:"retries"`

	// CallsPerMinute caps dispatched provider calls inside any trailing
	// one-minute window, counting failed attempts.
	CallsPerMinute int `yaml:"calls_per_minute"`

	// BackoffCapSeconds bounds the exponential retry delay.
	BackoffCapSeconds int `yaml:"backoff_cap_seconds"`

	// RequestTimeoutSeconds bounds a single provider call. Zero disables
	// the per-call timeout.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	OutlineMaxTokens   int32   `yaml:"outline_max_tokens"`
	ContentMaxTokens   int32   `yaml:"content_max_tokens"`
	OutlineTemperature float32 `yaml:"outline_temperature"`
	ContentTemperature float32 `yaml:"content_temperature"`

	// ContextBudget caps the characters of earlier chapter text carried
	// into a point prompt. Zero means no cap.
	ContextBudget int `yaml:"context_budget"`
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Model:                 "gemini-2.0-flash",
		Retries:               3,
		CallsPerMinute:        15,
		BackoffCapSeconds:     30,
		RequestTimeoutSeconds: 120,
		OutlineMaxTokens:      8192,
		ContentMaxTokens:      4096,
		OutlineTemperature:    0.6,
		ContentTemperature:    0.75,
		ContextBudget:         2500,
	}
}

// LoadConfig reads a YAML file and overlays it on the defaults, so a file
// only needs the keys it wants to change. An empty path returns the
// defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Model == "" && (c.OutlineModel == "" || c.ContentModel == "") {
		return fmt.Errorf("a model is required for every stage")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	if c.CallsPerMinute < 1 {
		return fmt.Errorf("calls_per_minute must be at least 1, got %d", c.CallsPerMinute)
	}
	if c.BackoffCapSeconds < 0 {
		return fmt.Errorf("backoff_cap_seconds must not be negative, got %d", c.BackoffCapSeconds)
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request_timeout_seconds must not be negative, got %d", c.RequestTimeoutSeconds)
	}
	if c.OutlineMaxTokens < 1 || c.ContentMaxTokens < 1 {
		return fmt.Errorf("token limits must be positive")
	}
	if c.ContextBudget < 0 {
		return fmt.Errorf("context_budget must not be negative, got %d", c.ContextBudget)
	}
	return nil
}

// OutlineModelName resolves the model used for outline generation.
func (c Config) OutlineModelName() string {
	if c.OutlineModel != "" {
		return c.OutlineModel
	}
	return c.Model
}

// ContentModelName resolves the model used for content generation.
func (c Config) ContentModelName() string {
	if c.ContentModel != "" {
		return c.ContentModel
	}
	return c.Model
}

// BackoffCap returns the retry delay bound as a duration.
func (c Config) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

// RequestTimeout returns the per-call bound as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) clientConfig() llmclient.Config {
	return llmclient.Config{
		Retries:        c.Retries,
		CallsPerMinute: c.CallsPerMinute,
		BackoffCap:     c.BackoffCap(),
	}
}

func (c Config) outlineParams() llmclient.Params {
	return llmclient.Params{
		Model:           c.OutlineModelName(),
		Temperature:     c.OutlineTemperature,
		MaxOutputTokens: c.OutlineMaxTokens,
	}
}

func (c Config) contentParams() llmclient.Params {
	return llmclient.Params{
		Model:           c.ContentModelName(),
		Temperature:     c.ContentTemperature,
		MaxOutputTokens: c.ContentMaxTokens,
	}
}
