package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/isauravmanitripathi/json-book-sub001/internal/checkpoint"
	"github.com/isauravmanitripathi/json-book-sub001/internal/llmclient"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/book"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/prompt"
	"github.com/isauravmanitripathi/json-book-sub001/pkg/report"
)

// OutlineStage generates a writing outline for every chapter of the input
// tree, mutating the tree in place.
type OutlineStage struct {
	Exec    Executor
	Log     *checkpoint.Log
	Prompts prompt.Builders
	Params  llmclient.Params

	Reporter report.Reporter
	Logger   *slog.Logger

	// Persist writes the tree and log after every settled unit so a crash
	// loses at most the unit in flight. Optional.
	Persist func(*book.Book) error
}

// Run walks the tree part by part and chapter by chapter. Chapters already
// in the processed ledger are skipped without a provider call, so a rerun
// over a finished tree is free.
//
// The returned flag is false when any unit failed and stayed pending. The
// error is non-nil only for cancellation; unit failures never abort the
// walk.
func (s *OutlineStage) Run(ctx context.Context, bk *book.Book) (bool, error) {
	rep := reporterOrNoop(s.Reporter)
	logger := loggerOrDefault(s.Logger)

	total, pending := 0, 0
	for pi := range bk.Parts {
		for ci := range bk.Parts[pi].Chapters {
			total++
			if !s.Log.Processed(checkpoint.StageOutline, outlineKey(pi, ci)) {
				pending++
			}
		}
	}
	rep.OnStageStart(ctx, checkpoint.StageOutline, pending, total)
	logger.Info("outline stage starting", "pending", pending, "total", total)

	ok := true
	for pi := range bk.Parts {
		part := &bk.Parts[pi]
		for ci := range part.Chapters {
			if err := ctx.Err(); err != nil {
				return ok, err
			}

			ch := &part.Chapters[ci]
			key := outlineKey(pi, ci)

			if s.Log.Processed(checkpoint.StageOutline, key) {
				rep.OnUnitDone(ctx, checkpoint.StageOutline, key, report.OutcomeSkipped, nil, 0)
				continue
			}
			rep.OnUnitStart(ctx, checkpoint.StageOutline, key, ch.Title)

			// A chapter without both fields can never produce a meaningful
			// outline, so it is marked done with an error note instead of
			// staying pending forever.
			if ch.Title == "" || ch.Description == "" {
				msg := fmt.Sprintf("skipping %s: missing chapter title or description", key)
				logger.Warn("chapter missing required fields", "key", key)
				s.Log.RecordError(checkpoint.StageOutline, key, msg, checkpoint.ReasonSkippedInvalidInput)
				ch.Outline = errorOutline(msg)
				s.Log.MarkSuccess(checkpoint.StageOutline, key)
				s.persist(bk, logger, &ok)
				rep.OnUnitDone(ctx, checkpoint.StageOutline, key, report.OutcomeWarning, nil, 0)
				continue
			}

			text, err := s.buildPrompt(part, pi, ch)
			if err != nil {
				msg := fmt.Sprintf("build outline prompt for %s: %v", key, err)
				logger.Error("prompt construction failed", "key", key, "error", err)
				s.Log.RecordError(checkpoint.StageOutline, key, msg, checkpoint.ReasonPromptError)
				ch.Outline = errorOutline(msg)
				ok = false
				s.persist(bk, logger, &ok)
				rep.OnUnitDone(ctx, checkpoint.StageOutline, key, report.OutcomeFailed, err, 0)
				continue
			}

			start := time.Now()
			record, err := s.Exec.Execute(ctx, text, s.Params)
			elapsed := time.Since(start)
			if err != nil {
				if ctx.Err() != nil {
					return ok, ctx.Err()
				}
				s.Log.RecordError(checkpoint.StageOutline, key, err.Error(), checkpoint.ReasonAPIFailure)
				s.Log.RecordCall(checkpoint.CallEntry{
					Stage: checkpoint.StageOutline, ItemKey: key, Model: s.Params.Model,
					Status: "error", DurationSeconds: elapsed.Seconds(),
					PromptChars: len(text), Error: err.Error(),
				})
				ch.Outline = errorOutline("outline generation failed: " + err.Error())
				ok = false
				s.persist(bk, logger, &ok)
				rep.OnUnitDone(ctx, checkpoint.StageOutline, key, report.OutcomeFailed, err, elapsed)
				continue
			}

			s.Log.RecordCall(checkpoint.CallEntry{
				Stage: checkpoint.StageOutline, ItemKey: key, Model: s.Params.Model,
				Status: "ok", DurationSeconds: elapsed.Seconds(), PromptChars: len(text),
			})

			outline, badFormat := outlineFromRecord(record)
			outcome := report.OutcomeSuccess
			if badFormat {
				msg := fmt.Sprintf("outline for %s parsed but writing_sections is missing or not a list", key)
				logger.Warn("outline format warning", "key", key)
				s.Log.RecordWarning(checkpoint.StageOutline, key, msg, checkpoint.ReasonFormatWarning)
				// The note also keeps the content stage away from this
				// chapter until an operator intervenes.
				outline.Error = msg
				outcome = report.OutcomeWarning
			}
			ch.Outline = outline
			s.Log.MarkSuccess(checkpoint.StageOutline, key)
			s.persist(bk, logger, &ok)
			rep.OnUnitDone(ctx, checkpoint.StageOutline, key, outcome, nil, elapsed)
		}
	}

	rep.OnStageDone(ctx, checkpoint.StageOutline, ok)
	return ok, nil
}

func (s *OutlineStage) buildPrompt(part *book.Part, pi int, ch *book.Chapter) (string, error) {
	if s.Prompts.Outline == nil {
		return "", errors.New("no outline prompt builder configured")
	}
	return s.Prompts.Outline(prompt.OutlineRequest{
		PartName:     partName(part, pi),
		ChapterTitle: ch.Title,
		Description:  ch.Description,
	})
}

// persist runs the Persist hook. A failed write clears the run success flag
// but never stops processing.
func (s *OutlineStage) persist(bk *book.Book, logger *slog.Logger, ok *bool) {
	if s.Persist == nil {
		return
	}
	if err := s.Persist(bk); err != nil {
		logger.Error("failed to persist state after unit",
			"stage", checkpoint.StageOutline, "error", err)
		*ok = false
	}
}

func outlineKey(pi, ci int) string {
	return fmt.Sprintf("p%d-ch%d", pi, ci)
}

func errorOutline(msg string) *book.Outline {
	return &book.Outline{Error: msg, Sections: []book.Section{}}
}

// outlineFromRecord converts a parsed reply into an Outline. The second
// return value reports that writing_sections was missing or not a list, in
// which case the outline carries empty sections.
func outlineFromRecord(record map[string]any) (*book.Outline, bool) {
	out := &book.Outline{Sections: []book.Section{}}
	if s, ok := record["chapter_title_suggestion"].(string); ok {
		out.TitleSuggestion = s
	}
	raw, ok := record["writing_sections"].([]any)
	if !ok {
		return out, true
	}
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		sec := book.Section{}
		if t, ok := m["section_title"].(string); ok {
			sec.Title = t
		}
		sec.Points = stringSlice(m["content_points_to_cover"])
		sec.SearchTerms = stringSlice(m["Google Search_terms"])
		out.Sections = append(out.Sections, sec)
	}
	return out, false
}

// stringSlice coerces a decoded JSON array to strings. Non-string entries
// become empty strings so list positions, which item numbering depends on,
// are preserved.
func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		s, _ := entry.(string)
		out = append(out, s)
	}
	return out
}
