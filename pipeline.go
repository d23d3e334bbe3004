package bookgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/isauravmanitripathi/json-book-sub001/internal/checkpoint"
	"github.com/isauravmanitripathi/json-book-sub001/internal/llmclient"
	"github.com/isauravmanitripathi/json-book-sub001/internal/stage"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/book"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/prompt"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/report"
)

const (
	logSuffix     = "_combined_log.json"
	outlineSuffix = "_outlined.json"

	// contentStamp names the timestamped final content file.
	contentStamp = "20060102_150405"
)

// RunResult summarizes a pipeline invocation. Paths are empty for stages
// that have not completed yet.
type RunResult struct {
	Status      checkpoint.Status
	RunDir      string
	OutlinePath string
	ContentPath string

	// Processed counts distinct finished units across this and prior runs.
	Processed int
	// Errors counts error and warning entries accumulated in the run log.
	Errors int
}

// Pipeline drives the two generation stages over one input tree. Provider
// is required; every other field has a usable default. A Pipeline is not
// safe for concurrent Run calls sharing a Store.
type Pipeline struct {
	Config   Config
	Provider llmclient.Provider

	// Prompts overrides individual prompt builders. Nil builders fall back
	// to the defaults.
	Prompts prompt.Builders

	// Store persists the run log. When nil, NewStore is consulted, and
	// when that is also nil a JSON file store inside the run directory is
	// used.
	Store    checkpoint.Store
	NewStore func(runDir, stem string) (checkpoint.Store, error)

	Reporter report.Reporter
	Logger   *slog.Logger
}

// New returns a Pipeline with the given settings and default collaborators.
func New(cfg Config, provider llmclient.Provider) *Pipeline {
	return &Pipeline{Config: cfg, Provider: provider}
}

// Run generates outlines and content for the tree at inputPath, writing all
// artifacts under outputDir/<input stem>/. Finished work recorded in the
// run log is never repeated; force discards that record and starts over.
// Run returns an error when a stage finished with failed units, when the
// context was cancelled, or on setup problems. Rerunning after a failure
// retries only what is still pending.
func (p *Pipeline) Run(ctx context.Context, inputPath, outputDir string, force bool) (RunResult, error) {
	if p.Provider == nil {
		return RunResult{}, errors.New("pipeline needs a provider")
	}
	if err := p.Config.Validate(); err != nil {
		return RunResult{}, fmt.Errorf("pipeline config: %w", err)
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	runDir := filepath.Join(outputDir, stem)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return RunResult{RunDir: runDir}, fmt.Errorf("create run directory: %w", err)
	}

	store := p.Store
	if store == nil && p.NewStore != nil {
		var err error
		if store, err = p.NewStore(runDir, stem); err != nil {
			return RunResult{RunDir: runDir}, fmt.Errorf("open run log store: %w", err)
		}
	}
	if store == nil {
		store = checkpoint.NewFileStore(filepath.Join(runDir, stem+logSuffix))
	}

	runLog, err := store.Load(checkpoint.RunInfo{
		InputFilePath: inputPath,
		GeneralModel:  p.Config.Model,
		OutlineModel:  p.Config.OutlineModelName(),
		ContentModel:  p.Config.ContentModelName(),
	}, force)
	if err != nil {
		return RunResult{RunDir: runDir}, fmt.Errorf("load run log: %w", err)
	}

	if runLog.OverallStatus == checkpoint.StatusContentComplete {
		logger.Info("run already complete", "content", runLog.ContentFilePath)
		return resultFrom(runLog, runDir), nil
	}

	return p.run(ctx, runLog, store, inputPath, runDir, stem, logger)
}

// run executes the pending stages. The final log save happens in a defer so
// cancellation and failure paths stamp their duration too.
func (p *Pipeline) run(ctx context.Context, runLog *checkpoint.Log, store checkpoint.Store, inputPath, runDir, stem string, logger *slog.Logger) (res RunResult, err error) {
	cfg := p.Config
	runStart := time.Now()
	defer func() {
		runLog.Finalize(runStart, time.Now())
		if serr := store.Save(runLog); serr != nil {
			logger.Error("failed to save final run log", "error", serr)
		}
		res = resultFrom(runLog, runDir)
	}()

	client := llmclient.NewWithReporter(p.Provider, cfg.clientConfig(), p.Reporter)
	client.SetLogger(logger)
	prompts := p.prompts()
	outlinePath := filepath.Join(runDir, stem+outlineSuffix)

	runOutline := false
	switch runLog.OverallStatus {
	case checkpoint.StatusPendingOutline:
		runOutline = true
	case checkpoint.StatusOutlineComplete, checkpoint.StatusPendingContent:
	case checkpoint.StatusError:
		// Resume where the failure happened. The outline path is recorded
		// only once that stage has completed.
		runOutline = runLog.OutlineFilePath == ""
	default:
		logger.Warn("unrecognized run status, restarting from the outline stage",
			"status", runLog.OverallStatus)
		runOutline = true
	}

	var outlined *book.Book
	if runOutline {
		src, lerr := p.loadOutlineInput(inputPath, outlinePath, runLog, logger)
		if lerr != nil {
			runLog.SetStatus(checkpoint.StatusError)
			return res, lerr
		}
		runLog.OutlineModelUsed = cfg.OutlineModelName()
		runLog.SetStatus(checkpoint.StatusPendingOutline)
		saveOrWarn(store, runLog, logger)

		st := &stage.OutlineStage{
			Exec:     client,
			Log:      runLog,
			Prompts:  prompts,
			Params:   cfg.outlineParams(),
			Reporter: p.Reporter,
			Logger:   logger,
			Persist: func(b *book.Book) error {
				if werr := book.WriteJSON(outlinePath, b); werr != nil {
					return werr
				}
				return store.Save(runLog)
			},
		}
		ok, rerr := st.Run(ctx, src)
		if rerr != nil {
			runLog.SetStatus(checkpoint.StatusError)
			return res, rerr
		}
		if !ok {
			runLog.SetStatus(checkpoint.StatusError)
			return res, errors.New("outline stage finished with failures, rerun to retry")
		}
		if werr := book.WriteJSON(outlinePath, src); werr != nil {
			runLog.SetStatus(checkpoint.StatusError)
			return res, fmt.Errorf("write outline file: %w", werr)
		}
		runLog.OutlineFilePath = outlinePath
		runLog.SetStatus(checkpoint.StatusOutlineComplete)
		saveOrWarn(store, runLog, logger)
		outlined = src
	}

	if outlined == nil {
		path := runLog.OutlineFilePath
		if path == "" {
			path = outlinePath
		}
		var lerr error
		if outlined, lerr = book.LoadBook(path); lerr != nil {
			runLog.SetStatus(checkpoint.StatusError)
			return res, fmt.Errorf("load outlined tree: %w", lerr)
		}
	}

	// Reuse the planned content path when resuming so the interrupted
	// run's interim work is found again instead of orphaned.
	contentPath := runLog.ContentFilePathPlanned
	if contentPath == "" {
		name := fmt.Sprintf("%s_content_%s.json", stem, time.Now().Format(contentStamp))
		contentPath = filepath.Join(runDir, name)
	}
	interimPath := interimPathFor(contentPath)

	runLog.ContentModelUsed = cfg.ContentModelName()
	runLog.ContentFilePathPlanned = contentPath
	runLog.SetStatus(checkpoint.StatusPendingContent)
	saveOrWarn(store, runLog, logger)

	var prior *book.ContentBook
	if runLog.ProcessedCount() > 0 {
		prior = loadPrior(interimPath, contentPath, logger)
	}

	st := &stage.ContentStage{
		Exec:          client,
		Log:           runLog,
		Prompts:       prompts,
		Params:        cfg.contentParams(),
		ContextBudget: cfg.ContextBudget,
		Reporter:      p.Reporter,
		Logger:        logger,
		Persist: func(cb *book.ContentBook) error {
			if werr := book.WriteJSON(interimPath, cb); werr != nil {
				return werr
			}
			return store.Save(runLog)
		},
	}
	out, ok, rerr := st.Run(ctx, outlined, prior)
	if rerr != nil {
		runLog.SetStatus(checkpoint.StatusError)
		return res, rerr
	}
	// The final tree is written even after failed units; the placeholders
	// make the gaps visible and the next run replaces them.
	if werr := book.WriteJSON(contentPath, out); werr != nil {
		runLog.SetStatus(checkpoint.StatusError)
		return res, fmt.Errorf("write content file: %w", werr)
	}
	if !ok {
		runLog.SetStatus(checkpoint.StatusError)
		return res, errors.New("content stage finished with failures, rerun to retry")
	}
	runLog.ContentFilePath = contentPath
	runLog.SetStatus(checkpoint.StatusContentComplete)
	if rmErr := os.Remove(interimPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.Warn("could not remove interim content file", "path", interimPath, "error", rmErr)
	}
	logger.Info("run complete", "content", contentPath)
	return res, nil
}

// prompts fills unset builders with the defaults.
func (p *Pipeline) prompts() prompt.Builders {
	b := p.Prompts
	def := prompt.Defaults()
	if b.Outline == nil {
		b.Outline = def.Outline
	}
	if b.Intro == nil {
		b.Intro = def.Intro
	}
	if b.Point == nil {
		b.Point = def.Point
	}
	return b
}

// loadOutlineInput prefers the partial outline artifact over the raw input
// once chapters have finished, so their outlines survive a restart.
func (p *Pipeline) loadOutlineInput(inputPath, outlinePath string, runLog *checkpoint.Log, logger *slog.Logger) (*book.Book, error) {
	if runLog.ProcessedCount() > 0 {
		if b, err := book.LoadBook(outlinePath); err == nil {
			logger.Info("resuming outline stage from partial artifact", "path", outlinePath)
			return b, nil
		}
	}
	b, err := book.LoadBook(inputPath)
	if err != nil {
		return nil, fmt.Errorf("load input file: %w", err)
	}
	return b, nil
}

// loadPrior returns the freshest readable content tree, trying the interim
// file before the planned final file. Nil when neither is readable.
func loadPrior(interimPath, finalPath string, logger *slog.Logger) *book.ContentBook {
	for _, path := range []string{interimPath, finalPath} {
		cb, err := book.LoadContentBook(path)
		if err != nil {
			continue
		}
		logger.Info("loaded prior content tree", "path", path)
		return cb
	}
	return nil
}

func interimPathFor(finalPath string) string {
	return strings.TrimSuffix(finalPath, filepath.Ext(finalPath)) + "_interim.json"
}

func saveOrWarn(store checkpoint.Store, l *checkpoint.Log, logger *slog.Logger) {
	if err := store.Save(l); err != nil {
		logger.Error("failed to save run log", "error", err)
	}
}

func resultFrom(l *checkpoint.Log, runDir string) RunResult {
	return RunResult{
		Status:      l.OverallStatus,
		RunDir:      runDir,
		OutlinePath: l.OutlineFilePath,
		ContentPath: l.ContentFilePath,
		Processed:   l.ProcessedCount(),
		Errors:      len(l.Errors),
	}
}
