// Package bookgen turns a hierarchical book outline into a fully written
// draft by driving a text-generation service in two resumable stages.
//
// The input is a JSON tree of parts, chapters, and descriptions. Stage one
// asks the model for a structured writing outline per chapter. Stage two
// walks those outlines and generates an introduction and one passage per
// content point, threading earlier passages into later prompts so chapters
// read as continuous text. Every piece of finished work is recorded in a
// durable run log, so an interrupted run picks up where it stopped instead
// of paying for the same generation twice.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Pipeline
//  2. Provider
//  3. Client
//  4. Run log and Store
//  5. Reporter
//
// # Pipeline
//
// Pipeline is the top-level entry point. It loads the input tree, decides
// from the run log which stages still need work, runs them, and writes the
// artifacts into a per-run directory:
//
//	<output dir>/<input stem>/
//	    <stem>_combined_log.json      run log
//	    <stem>_outlined.json          tree with generated outlines
//	    <stem>_content_<stamp>.json   final content tree
//
// A minimal run:
//
//	provider, err := bookgen.NewGeminiProvider(ctx, apiKey, 2*time.Minute)
//	if err != nil { ... }
//	res, err := bookgen.Generate(ctx, bookgen.DefaultConfig(), provider, "book.json", "results")
//
// Rerunning a finished book is free, and rerunning a failed one retries
// only the units that never succeeded.
//
// # Provider
//
// Provider is the service boundary: one method that takes a prompt and
// model parameters and returns raw text. NewGeminiProvider is the
// production implementation. Tests and offline runs supply their own.
//
// # Client
//
// The Client wraps a Provider with the operational behavior every call
// needs: a sliding one-minute rate window, exponential backoff between
// attempts, and repair of almost-valid JSON replies (stray code fences,
// trailing commas, missing closing braces). Callers receive a parsed JSON
// object or an error after the attempt budget is spent.
//
// # Run log and Store
//
// The run log is the idempotency ledger: every finished unit of work is
// recorded under a stable key, and both stages consult it before calling
// the provider. It also carries the error history and one entry per
// provider call. A Store persists the log after every unit; the default
// keeps a JSON file next to the other artifacts, and NewSQLiteStore keeps
// it in SQLite instead.
//
// # Reporter
//
// A Reporter observes the run: stage starts, unit outcomes, rate-limit
// waits, retry backoffs. NewLoggingReporter renders these through log/slog
// and RunMetrics counts them. Reporters never influence control flow; the
// pipeline behaves identically with none configured.
//
// # Summary
//
// Config holds the knobs, Pipeline orchestrates, the Client talks to the
// Provider, the run log makes every step durable, and Reporters watch. The
// cmd/bookgen command wires all of it behind flags for terminal use.
package bookgen
