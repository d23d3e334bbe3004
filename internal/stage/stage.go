// Package stage implements the two passes of a generation run: outlining
// every chapter of the input tree, then elaborating every outline section
// into numbered content items. Both stages are resumable; the checkpoint
// log decides what still needs work.
package stage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/isauravmanitripathi/json-book-sub001/internal/llmclient"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/book"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/report"
)

// Executor issues one generation request and returns the parsed reply.
// *llmclient.Client satisfies it; tests substitute deterministic stubs.
type Executor interface {
	Execute(ctx context.Context, prompt string, p llmclient.Params) (map[string]any, error)
}

func reporterOrNoop(r report.Reporter) report.Reporter {
	if r == nil {
		return report.NoopReporter{}
	}
	return r
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// partName falls back to a positional label for unnamed parts.
func partName(p *book.Part, idx int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("Part %d", idx+1)
}
