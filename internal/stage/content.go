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

// ContentStage elaborates every usable outline section into an introduction
// plus one passage per content point, producing the content tree.
type ContentStage struct {
	Exec    Executor
	Log     *checkpoint.Log
	Prompts prompt.Builders
	Params  llmclient.Params

	// ContextBudget caps the characters of preceding chapter text embedded
	// in a point prompt. Zero means no cap.
	ContextBudget int

	Reporter report.Reporter
	Logger   *slog.Logger

	// Persist writes the content tree and log after every settled unit.
	// Optional.
	Persist func(*book.ContentBook) error

	// Now defaults to time.Now; tests pin it for stable timestamps.
	Now func() time.Time
}

// unit is one planned piece of content generation work.
type unit struct {
	kind    string
	key     string
	number  string
	part    string
	section string
	points  []string
	point   string
	chapter *book.ContentChapter
}

// failureItem builds the placeholder entry recorded when the unit fails.
func (u *unit) failureItem(text string) book.ContentItem {
	it := book.ContentItem{Number: u.number, Type: u.kind, Text: text}
	if u.kind == book.ItemPoint {
		it.OriginalPoint = u.point
	}
	return it
}

// Run builds or extends the content tree for src. prior is a previously
// persisted interim tree to resume from, or nil; a prior tree whose book
// title does not match src is discarded with a warning.
//
// Every pending unit is attempted in reading order. A unit that fails stays
// pending and leaves an error placeholder in its slot; processing continues
// with the next unit. The returned flag is false when any unit failed, and
// the error is non-nil only for cancellation.
func (s *ContentStage) Run(ctx context.Context, src *book.Book, prior *book.ContentBook) (*book.ContentBook, bool, error) {
	rep := reporterOrNoop(s.Reporter)
	logger := loggerOrDefault(s.Logger)
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	out := s.prepareOutput(src, prior, now(), logger)
	s.buildSkeleton(src, out)
	units, total := s.planUnits(src, out)

	rep.OnStageStart(ctx, checkpoint.StageContent, len(units), total)
	logger.Info("content stage starting", "pending", len(units), "total", total)

	ok := true
	for i := range units {
		u := &units[i]
		if err := ctx.Err(); err != nil {
			return out, ok, err
		}
		rep.OnUnitStart(ctx, checkpoint.StageContent, u.key, fmt.Sprintf("%s %s", u.kind, u.number))

		promptText, field, err := s.buildPrompt(u, out.Title)
		if err != nil {
			msg := fmt.Sprintf("build %s prompt for %s: %v", u.kind, u.key, err)
			logger.Error("prompt construction failed", "key", u.key, "error", err)
			s.Log.RecordError(checkpoint.StageContent, u.key, msg, checkpoint.ReasonPromptError)
			u.chapter.ReplaceItem(u.failureItem(book.ErrorMarker + " " + msg))
			ok = false
			s.persist(out, logger, &ok)
			rep.OnUnitDone(ctx, checkpoint.StageContent, u.key, report.OutcomeFailed, err, 0)
			continue
		}

		start := time.Now()
		record, err := s.Exec.Execute(ctx, promptText, s.Params)
		elapsed := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return out, ok, ctx.Err()
			}
			s.Log.RecordCall(checkpoint.CallEntry{
				Stage: checkpoint.StageContent, ItemKey: u.key, Model: s.Params.Model,
				Status: "error", DurationSeconds: elapsed.Seconds(),
				PromptChars: len(promptText), Error: err.Error(),
			})
			s.failUnit(ctx, u, out, err, err.Error(), logger, rep, &ok, elapsed)
			continue
		}

		s.Log.RecordCall(checkpoint.CallEntry{
			Stage: checkpoint.StageContent, ItemKey: u.key, Model: s.Params.Model,
			Status: "ok", DurationSeconds: elapsed.Seconds(), PromptChars: len(promptText),
		})

		value, present := record[field]
		text, isText := value.(string)
		if !present || !isText {
			msg := fmt.Sprintf("reply missing expected field %q", field)
			if present {
				msg = fmt.Sprintf("expected field %q is not text", field)
			}
			s.failUnit(ctx, u, out, errors.New(msg), msg, logger, rep, &ok, elapsed)
			continue
		}

		outcome := report.OutcomeSuccess
		if text == "" {
			warn := fmt.Sprintf("provider returned empty content for %s", checkpoint.Key(checkpoint.StageContent, u.key))
			logger.Warn("empty reply recorded as placeholder", "key", u.key)
			s.Log.RecordWarning(checkpoint.StageContent, u.key, warn, checkpoint.ReasonEmptyReply)
			text = "WARNING: " + warn
			outcome = report.OutcomeWarning
		}

		item := book.ContentItem{Number: u.number, Type: u.kind, Text: text}
		if u.kind == book.ItemPoint {
			item.OriginalPoint = u.point
		}
		u.chapter.ReplaceItem(item)
		s.Log.MarkSuccess(checkpoint.StageContent, u.key)
		s.persist(out, logger, &ok)
		rep.OnUnitDone(ctx, checkpoint.StageContent, u.key, outcome, nil, elapsed)
	}

	out.SortAll()
	rep.OnStageDone(ctx, checkpoint.StageContent, ok)
	return out, ok, nil
}

// failUnit records a failed generation attempt: error entry in the log, an
// error placeholder in the slot, cleared success flag, persisted state. The
// unit stays out of the processed ledger so a later run retries it.
func (s *ContentStage) failUnit(ctx context.Context, u *unit, out *book.ContentBook, cause error, msg string, logger *slog.Logger, rep report.Reporter, ok *bool, elapsed time.Duration) {
	logger.Error("content unit failed", "key", u.key, "error", msg)
	s.Log.RecordError(checkpoint.StageContent, u.key, msg, checkpoint.ReasonAPIBadFormat)
	u.chapter.ReplaceItem(u.failureItem(book.ErrorMarker + " Generation failed. " + msg))
	*ok = false
	s.persist(out, logger, ok)
	rep.OnUnitDone(ctx, checkpoint.StageContent, u.key, report.OutcomeFailed, cause, elapsed)
}

// prepareOutput returns the tree generation will write into: the prior
// interim tree when it matches the input, otherwise a fresh root.
func (s *ContentStage) prepareOutput(src *book.Book, prior *book.ContentBook, now time.Time, logger *slog.Logger) *book.ContentBook {
	title := src.Title
	if title == "" {
		title = "Unknown Book"
	}
	stamp := now.UTC().Format(time.RFC3339)

	if prior != nil {
		if prior.Title == title {
			prior.ContentModel = s.Params.Model
			prior.GeneratedAt = stamp
			logger.Info("resuming from interim content tree", "parts", len(prior.Parts))
			return prior
		}
		logger.Warn("interim content tree belongs to a different book, rebuilding",
			"interim_title", prior.Title, "input_title", title)
	}

	outlineModel := s.Log.OutlineModelUsed
	if outlineModel == "" {
		outlineModel = "Unknown"
	}
	return &book.ContentBook{
		Title:        title,
		OutlineModel: outlineModel,
		ContentModel: s.Params.Model,
		GeneratedAt:  stamp,
		Parts:        []book.ContentPart{},
	}
}

// buildSkeleton makes sure every part and chapter the plan will touch
// exists in the output tree. Parts are matched by name and chapters by
// title, so resumed runs and duplicate section titles merge instead of
// multiplying. Runs before planUnits captures chapter pointers, after
// which the tree shape is stable.
func (s *ContentStage) buildSkeleton(src *book.Book, out *book.ContentBook) {
	for pi := range src.Parts {
		name := partName(&src.Parts[pi], pi)
		if _, ok := out.Part(name); !ok {
			out.Parts = append(out.Parts, book.ContentPart{
				Number:   fmt.Sprintf("P%d", pi+1),
				Name:     name,
				Chapters: []book.ContentChapter{},
			})
		}
	}

	for pi := range src.Parts {
		inPart := &src.Parts[pi]
		outPart, _ := out.Part(partName(inPart, pi))
		counter := 0
		for ci := range inPart.Chapters {
			outline := inPart.Chapters[ci].Outline
			if !outline.Usable() {
				continue
			}
			for si := range outline.Sections {
				counter++
				title := sectionTitle(&outline.Sections[si], counter)
				if _, ok := outPart.Chapter(title); !ok {
					outPart.Chapters = append(outPart.Chapters, book.ContentChapter{
						Number:  counter,
						Title:   title,
						Content: []book.ContentItem{},
					})
				}
			}
		}
		outPart.SortChapters()
	}
}

// planUnits computes the pending work in reading order. It walks the same
// sequence as buildSkeleton so chapter numbering is identical, and returns
// the pending units plus the total eligible count.
//
// Item numbers are positional: slot 1 is the introduction and point at
// outline index m gets slot m+2 whether or not earlier points were blank.
// Blank points produce no unit, which leaves holes like 2.3 missing, but
// keeps numbering stable when an outline is edited in place.
func (s *ContentStage) planUnits(src *book.Book, out *book.ContentBook) ([]unit, int) {
	var units []unit
	total := 0

	for pi := range src.Parts {
		inPart := &src.Parts[pi]
		name := partName(inPart, pi)
		outPart, ok := out.Part(name)
		if !ok {
			continue
		}
		counter := 0
		for ci := range inPart.Chapters {
			outline := inPart.Chapters[ci].Outline
			if !outline.Usable() {
				continue
			}
			for si := range outline.Sections {
				counter++
				sec := &outline.Sections[si]
				title := sectionTitle(sec, counter)
				ch, ok := outPart.Chapter(title)
				if !ok {
					continue
				}

				introKey := fmt.Sprintf("p%d-c%d-s%d-intro", pi, ci, si)
				introNum := fmt.Sprintf("%d.1", counter)
				total++
				if !s.alreadyDone(introKey, ch, introNum) {
					units = append(units, unit{
						kind: book.ItemIntro, key: introKey, number: introNum,
						part: name, section: title, points: sec.Points, chapter: ch,
					})
				}

				for mi, pt := range sec.Points {
					if pt == "" {
						continue
					}
					total++
					pointKey := fmt.Sprintf("p%d-c%d-s%d-p%d", pi, ci, si, mi)
					pointNum := fmt.Sprintf("%d.%d", counter, mi+2)
					if s.alreadyDone(pointKey, ch, pointNum) {
						continue
					}
					units = append(units, unit{
						kind: book.ItemPoint, key: pointKey, number: pointNum,
						part: name, section: title, point: pt, chapter: ch,
					})
				}
			}
		}
	}
	return units, total
}

// alreadyDone reports whether a unit can be skipped: its key is in the
// processed ledger, or its slot already holds usable text. The second check
// protects manually repaired trees running against a rebuilt log.
func (s *ContentStage) alreadyDone(key string, ch *book.ContentChapter, number string) bool {
	if s.Log.Processed(checkpoint.StageContent, key) {
		return true
	}
	it, ok := ch.Item(number)
	return ok && it.HasText()
}

func (s *ContentStage) buildPrompt(u *unit, bookTitle string) (string, string, error) {
	switch u.kind {
	case book.ItemIntro:
		if s.Prompts.Intro == nil {
			return "", prompt.IntroReplyField, errors.New("no intro prompt builder configured")
		}
		text, err := s.Prompts.Intro(prompt.IntroRequest{
			BookTitle:    bookTitle,
			PartName:     u.part,
			SectionTitle: u.section,
			Points:       u.points,
		})
		return text, prompt.IntroReplyField, err
	case book.ItemPoint:
		if s.Prompts.Point == nil {
			return "", prompt.PointReplyField, errors.New("no point prompt builder configured")
		}
		text, err := s.Prompts.Point(prompt.PointRequest{
			BookTitle:    bookTitle,
			PartName:     u.part,
			SectionTitle: u.section,
			Point:        u.point,
			ItemNumber:   u.number,
			PriorContext: PrecedingContext(u.chapter, u.number, s.ContextBudget),
		})
		return text, prompt.PointReplyField, err
	default:
		return "", "", fmt.Errorf("unknown unit kind %q", u.kind)
	}
}

func (s *ContentStage) persist(out *book.ContentBook, logger *slog.Logger, ok *bool) {
	if s.Persist == nil {
		return
	}
	if err := s.Persist(out); err != nil {
		logger.Error("failed to persist state after unit",
			"stage", checkpoint.StageContent, "error", err)
		*ok = false
	}
}

func sectionTitle(sec *book.Section, n int) string {
	if sec.Title != "" {
		return sec.Title
	}
	return fmt.Sprintf("Chapter Section %d", n)
}
