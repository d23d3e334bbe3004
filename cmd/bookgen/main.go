// Command bookgen generates a book draft from a structure JSON file using
// the Gemini API, in two resumable stages. Interrupting it is safe: rerun
// with the same arguments to continue where it stopped.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	bookgen "github.com/isauravmanitripathi/json-book-sub001"
)

func main() {
	_ = godotenv.Load()

	var (
		inputPath    = flag.String("input", "", "book structure JSON file (required)")
		outputDir    = flag.String("output-dir", "results", "directory run artifacts are written under")
		configPath   = flag.String("config", "", "optional YAML config file")
		model        = flag.String("model", "", "override the model for both stages")
		outlineModel = flag.String("outline-model", "", "override the outline stage model")
		contentModel = flag.String("content-model", "", "override the content stage model")
		storeKind    = flag.String("checkpoint", "json", "run log backend: json or sqlite")
		testOnly     = flag.Bool("test", false, "verify API connectivity and exit")
		forceRestart = flag.Bool("force-restart", false, "discard the run log and start over")
		verbose      = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := bookgen.LoadConfig(*configPath)
	if err != nil {
		logger.Error("could not load config", "error", err)
		os.Exit(1)
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *outlineModel != "" {
		cfg.OutlineModel = *outlineModel
	}
	if *contentModel != "" {
		cfg.ContentModel = *contentModel
	}

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		logger.Error("GOOGLE_API_KEY is not set; export it or put it in a .env file")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := bookgen.NewGeminiProvider(ctx, apiKey, cfg.RequestTimeout())
	if err != nil {
		logger.Error("could not create provider", "error", err)
		os.Exit(1)
	}

	if *testOnly {
		os.Exit(ping(ctx, logger, provider, cfg))
	}

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bookgen -input book.json [flags]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	metrics := &bookgen.RunMetrics{}
	pipe := &bookgen.Pipeline{
		Config:   cfg,
		Provider: provider,
		Reporter: bookgen.NewCompositeReporter(bookgen.NewLoggingReporter(logger), metrics),
		Logger:   logger,
	}

	var db *sql.DB
	switch *storeKind {
	case "json":
	case "sqlite":
		pipe.NewStore = func(runDir, stem string) (bookgen.Store, error) {
			dsn := "file:" + filepath.Join(runDir, stem+"_combined_log.db") + "?_journal=WAL"
			handle, err := sql.Open("sqlite", dsn)
			if err != nil {
				return nil, err
			}
			db = handle
			return bookgen.NewSQLiteStore(handle)
		}
	default:
		logger.Error("unknown -checkpoint backend, want json or sqlite", "value", *storeKind)
		os.Exit(1)
	}

	res, err := pipe.Run(ctx, *inputPath, *outputDir, *forceRestart)
	if db != nil {
		_ = db.Close()
	}

	snap := metrics.Snapshot()
	logger.Info("run summary",
		"status", res.Status,
		"processed", res.Processed,
		"succeeded", snap.UnitsSucceeded,
		"warned", snap.UnitsWarned,
		"failed", snap.UnitsFailed,
		"retries", snap.Retries,
		"rate_limit_waits", snap.RateLimitWaits,
		"provider_time", snap.ProviderTime)

	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("interrupted, progress saved; rerun to resume", "run_dir", res.RunDir)
			os.Exit(130)
		}
		logger.Error("run failed", "error", err, "run_dir", res.RunDir)
		os.Exit(1)
	}
	logger.Info("book generated",
		"content", res.ContentPath,
		"outline", res.OutlinePath,
		"log_errors", res.Errors)
}

// ping checks connectivity for each configured model and returns the
// process exit code.
func ping(ctx context.Context, logger *slog.Logger, provider bookgen.Provider, cfg bookgen.Config) int {
	models := []string{cfg.OutlineModelName()}
	if m := cfg.ContentModelName(); m != models[0] {
		models = append(models, m)
	}
	code := 0
	for _, m := range models {
		status, err := bookgen.Ping(ctx, provider, m)
		switch {
		case err != nil:
			logger.Error("connectivity test failed", "model", m, "error", err)
			code = 1
		case status != "ok":
			logger.Warn("model reachable but replied unexpectedly", "model", m, "status", status)
		default:
			logger.Info("model reachable", "model", m)
		}
	}
	return code
}
