package bookgen

import (
	"context"
	"database/sql"
	"time"

	"github.com/isauravmanitripathi/json-book-sub001/internal/checkpoint"
	"github.com/isauravmanitripathi/json-book-sub001/internal/llmclient"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/book"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/prompt"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/report"
)

// Re-export key types so users don't need to dig into the sub-packages.

type (
	Provider     = llmclient.Provider
	Params       = llmclient.Params
	Client       = llmclient.Client
	ClientConfig = llmclient.Config
	Window       = llmclient.Window

	Store      = checkpoint.Store
	Log        = checkpoint.Log
	RunInfo    = checkpoint.RunInfo
	Status     = checkpoint.Status
	ErrorEntry = checkpoint.ErrorEntry
	CallEntry  = checkpoint.CallEntry

	Reporter           = report.Reporter
	Outcome            = report.Outcome
	NoopReporter       = report.NoopReporter
	LoggingReporter    = report.LoggingReporter
	CompositeReporter  = report.CompositeReporter
	RunMetrics         = report.RunMetrics
	RunMetricsSnapshot = report.RunMetricsSnapshot

	Builders       = prompt.Builders
	OutlineRequest = prompt.OutlineRequest
	IntroRequest   = prompt.IntroRequest
	PointRequest   = prompt.PointRequest

	Book        = book.Book
	ContentBook = book.ContentBook
)

// Re-export common reporter and prompt helpers.

var (
	NewLoggingReporter   = report.NewLoggingReporter
	NewCompositeReporter = report.NewCompositeReporter
	DefaultPrompts       = prompt.Defaults
)

// Sentinel errors providers and callers match with errors.Is.

var (
	ErrContentBlocked = llmclient.ErrContentBlocked
	ErrEmptyReply     = llmclient.ErrEmptyReply
)

// Re-export run status values for convenience.

const (
	StatusPendingOutline  = checkpoint.StatusPendingOutline
	StatusOutlineComplete = checkpoint.StatusOutlineComplete
	StatusPendingContent  = checkpoint.StatusPendingContent
	StatusContentComplete = checkpoint.StatusContentComplete
	StatusError           = checkpoint.StatusError
)

// Re-export stage names and unit outcomes used in reporter events.

const (
	StageOutline = checkpoint.StageOutline
	StageContent = checkpoint.StageContent

	OutcomeSuccess = report.OutcomeSuccess
	OutcomeWarning = report.OutcomeWarning
	OutcomeSkipped = report.OutcomeSkipped
	OutcomeFailed  = report.OutcomeFailed
)

// Provider and client constructors
// These wrap the internal/llmclient package so external callers
// never need to import internal packages.

// NewGeminiProvider returns a Provider backed by the Gemini API. The key
// usually comes from the GOOGLE_API_KEY environment variable. A zero
// timeout disables the per-call bound.
func NewGeminiProvider(ctx context.Context, apiKey string, timeout time.Duration) (Provider, error) {
	return llmclient.NewGeminiProvider(ctx, apiKey, timeout)
}

// NewClient returns the rate-limited retrying client around a Provider.
// The Pipeline builds its own client; use this for direct provider access.
func NewClient(provider Provider, cfg ClientConfig) *Client {
	return llmclient.New(provider, cfg)
}

// NewClientWithReporter is NewClient with retry and rate-limit events
// delivered to rep.
func NewClientWithReporter(provider Provider, cfg ClientConfig, rep Reporter) *Client {
	return llmclient.NewWithReporter(provider, cfg, rep)
}

// Ping sends a minimal round trip through the provider and returns the
// status string the model reported, normally "ok".
func Ping(ctx context.Context, provider Provider, model string) (string, error) {
	return llmclient.Ping(ctx, provider, model)
}

// Store constructors

// NewFileStore returns a Store keeping the run log in a JSON file.
func NewFileStore(path string) Store {
	return checkpoint.NewFileStore(path)
}

// NewSQLiteStore returns a Store keeping the run log in a SQLite database.
// The schema is created if needed.
func NewSQLiteStore(db *sql.DB) (Store, error) {
	return checkpoint.NewSQLiteStore(db)
}

// NewMemStore returns a non-durable Store for tests and dry runs.
func NewMemStore() Store {
	return checkpoint.NewMemStore()
}

// Generate runs the full two-stage pipeline with default collaborators.
// It is shorthand for New(cfg, provider).Run(ctx, inputPath, outputDir, false).
func Generate(ctx context.Context, cfg Config, provider Provider, inputPath, outputDir string) (RunResult, error) {
	return New(cfg, provider).Run(ctx, inputPath, outputDir, false)
}
