// Package checkpoint tracks what a generation run has already finished so
// an interrupted run can resume without repeating provider calls. The run
// log is the single source of truth for resume decisions; the output trees
// are only consulted opportunistically.
package checkpoint

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status describes how far a run has progressed.
type Status string

const (
	StatusPendingOutline  Status = "pending_outline"
	StatusOutlineComplete Status = "outline_complete"
	StatusPendingContent  Status = "pending_content"
	StatusContentComplete Status = "content_complete"
	StatusError           Status = "error"
)

// Stage names namespace unit keys in the processed ledger.
const (
	StageOutline = "outline"
	StageContent = "content"
)

// Reason markers recorded with error and warning entries.
const (
	ReasonSkippedInvalidInput = "skipped_invalid_input"
	ReasonPromptError         = "prompt_error"
	ReasonAPIFailure          = "api_failure"
	ReasonAPIBadFormat        = "api_failure_or_bad_format"
	ReasonEmptyReply          = "api_empty_response"
	ReasonFormatWarning       = "response_format_warning"
)

// ErrorEntry is one recorded failure or warning. Exactly one of Error and
// Warning is set.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	ItemKey   string    `json:"item_key"`
	Error     string    `json:"error,omitempty"`
	Warning   string    `json:"warning,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// CallEntry records one logical provider call issued for a unit, after the
// client's internal retries have settled.
type CallEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Stage           string    `json:"stage"`
	ItemKey         string    `json:"item_key"`
	Model           string    `json:"model"`
	Status          string    `json:"status"`
	DurationSeconds float64   `json:"duration_seconds"`
	PromptChars     int       `json:"prompt_chars,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Log is the durable record of one generation run: identity, progress
// status, the processed-unit ledger, and the error and call history.
type Log struct {
	RunID                  string       `json:"run_id"`
	InputFilePath          string       `json:"input_file_path"`
	StartTime              time.Time    `json:"start_time"`
	EndTime                time.Time    `json:"end_time,omitzero"`
	TotalDurationSeconds   float64      `json:"total_duration_seconds,omitempty"`
	ModelUsedGeneral       string       `json:"model_used_general,omitempty"`
	OutlineModelUsed       string       `json:"outline_model_used,omitempty"`
	ContentModelUsed       string       `json:"content_model_used,omitempty"`
	OverallStatus          Status       `json:"overall_status"`
	OutlineFilePath        string       `json:"outline_file_path,omitempty"`
	ContentFilePathPlanned string       `json:"content_file_path_planned,omitempty"`
	ContentFilePath        string       `json:"content_file_path,omitempty"`
	ProcessedItems         []string     `json:"processed_items"`
	Errors                 []ErrorEntry `json:"errors"`
	APICalls               []CallEntry  `json:"api_calls"`

	processed map[string]struct{}
}

// RunInfo seeds a fresh log when no usable prior state exists.
type RunInfo struct {
	InputFilePath string
	GeneralModel  string
	OutlineModel  string
	ContentModel  string
}

// NewLog creates a fresh log with status pending_outline.
func NewLog(info RunInfo, now time.Time) *Log {
	return &Log{
		RunID:            uuid.NewString(),
		InputFilePath:    info.InputFilePath,
		StartTime:        now,
		ModelUsedGeneral: info.GeneralModel,
		OutlineModelUsed: info.OutlineModel,
		ContentModelUsed: info.ContentModel,
		OverallStatus:    StatusPendingOutline,
		ProcessedItems:   []string{},
		Errors:           []ErrorEntry{},
		APICalls:         []CallEntry{},
		processed:        map[string]struct{}{},
	}
}

// Key returns the namespaced ledger entry for a unit.
func Key(stage, itemKey string) string {
	return stage + ":" + itemKey
}

// MarkSuccess records a completed unit. Marking twice is a no-op; success
// is a one-way transition undone only by a forced restart.
func (l *Log) MarkSuccess(stage, itemKey string) {
	k := Key(stage, itemKey)
	if l.processed == nil {
		l.processed = map[string]struct{}{}
	}
	if _, ok := l.processed[k]; ok {
		return
	}
	l.processed[k] = struct{}{}
	l.ProcessedItems = append(l.ProcessedItems, k)
}

// Processed reports whether a unit completed in this or any prior run.
func (l *Log) Processed(stage, itemKey string) bool {
	_, ok := l.processed[Key(stage, itemKey)]
	return ok
}

// ProcessedCount returns the number of distinct completed units.
func (l *Log) ProcessedCount() int {
	return len(l.processed)
}

// RecordError appends a failure entry. The unit stays eligible for retry on
// a later run unless success is recorded separately.
func (l *Log) RecordError(stage, itemKey, message, reason string) {
	l.Errors = append(l.Errors, ErrorEntry{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		ItemKey:   itemKey,
		Error:     message,
		Status:    reason,
	})
}

// RecordWarning appends a warning entry for a unit that completed in a
// degraded way.
func (l *Log) RecordWarning(stage, itemKey, message, reason string) {
	l.Errors = append(l.Errors, ErrorEntry{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		ItemKey:   itemKey,
		Warning:   message,
		Status:    reason,
	})
}

// RecordCall appends a call entry, stamping the time if unset.
func (l *Log) RecordCall(c CallEntry) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	l.APICalls = append(l.APICalls, c)
}

// SetStatus moves the run to a new overall status.
func (l *Log) SetStatus(s Status) {
	l.OverallStatus = s
}

// Finalize stamps the end time and this invocation's wall-clock duration.
// Earlier runs' time is not carried over.
func (l *Log) Finalize(runStart, now time.Time) {
	l.EndTime = now
	l.TotalDurationSeconds = now.Sub(runStart).Seconds()
}

// valid reports whether a decoded log has the fields resume depends on.
func (l *Log) valid() bool {
	return l.ProcessedItems != nil && l.Errors != nil && l.OverallStatus != ""
}

// restore fixes up a freshly decoded log: fills defaults older files may
// lack and rebuilds the in-memory processed set.
func (l *Log) restore() {
	if l.RunID == "" {
		l.RunID = uuid.NewString()
	}
	if l.APICalls == nil {
		l.APICalls = []CallEntry{}
	}
	l.processed = make(map[string]struct{}, len(l.ProcessedItems))
	for _, k := range l.ProcessedItems {
		l.processed[k] = struct{}{}
	}
}

// normalize deduplicates and sorts the processed list for persistence.
func (l *Log) normalize() {
	slices.Sort(l.ProcessedItems)
	l.ProcessedItems = slices.Compact(l.ProcessedItems)
}
