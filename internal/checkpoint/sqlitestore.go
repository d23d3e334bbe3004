package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SQLiteStore persists the run log in a SQLite database, normalized into
// queryable tables: run_meta holds the scalar run state, processed_items the
// ledger, errors and api_calls the histories. Semantics match the FileStore:
// Save writes the full state, Load rebuilds the log or starts fresh.
//
// The store expects an *sql.DB opened with a SQLite driver; the importing
// package must register one, for example:
//
//	import _ "modernc.org/sqlite"
//	db, err := sql.Open("sqlite", "file:run.db")
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the store and its schema if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, logger: slog.Default()}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init run log schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			run_id TEXT NOT NULL,
			input_file_path TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT,
			total_duration_seconds REAL NOT NULL DEFAULT 0,
			model_used_general TEXT NOT NULL DEFAULT '',
			outline_model_used TEXT NOT NULL DEFAULT '',
			content_model_used TEXT NOT NULL DEFAULT '',
			overall_status TEXT NOT NULL,
			outline_file_path TEXT NOT NULL DEFAULT '',
			content_file_path_planned TEXT NOT NULL DEFAULT '',
			content_file_path TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS processed_items (
			entry TEXT PRIMARY KEY
		);
		CREATE TABLE IF NOT EXISTS errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			stage TEXT NOT NULL,
			item_key TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			warning TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS api_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			stage TEXT NOT NULL,
			item_key TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			duration_seconds REAL NOT NULL DEFAULT 0,
			prompt_chars INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);`)
	return err
}

func (s *SQLiteStore) Load(info RunInfo, force bool) (*Log, error) {
	if force {
		if err := s.clear(); err != nil {
			return nil, fmt.Errorf("clear run log: %w", err)
		}
		s.logger.Info("cleared existing run log, forced restart")
		return NewLog(info, time.Now().UTC()), nil
	}

	l := &Log{}
	var startTime, endTime, updatedAt string
	err := s.db.QueryRow(`
		SELECT run_id, input_file_path, start_time, COALESCE(end_time, ''),
			total_duration_seconds, model_used_general, outline_model_used,
			content_model_used, overall_status, outline_file_path,
			content_file_path_planned, content_file_path, updated_at
		FROM run_meta WHERE id = 1`).Scan(
		&l.RunID, &l.InputFilePath, &startTime, &endTime,
		&l.TotalDurationSeconds, &l.ModelUsedGeneral, &l.OutlineModelUsed,
		&l.ContentModelUsed, &l.OverallStatus, &l.OutlineFilePath,
		&l.ContentFilePathPlanned, &l.ContentFilePath, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return NewLog(info, time.Now().UTC()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run meta: %w", err)
	}
	l.StartTime = parseTime(startTime)
	l.EndTime = parseTime(endTime)

	if l.ProcessedItems, err = s.loadProcessed(); err != nil {
		return nil, err
	}
	if l.Errors, err = s.loadErrors(); err != nil {
		return nil, err
	}
	if l.APICalls, err = s.loadCalls(); err != nil {
		return nil, err
	}

	if !l.valid() {
		s.logger.Warn("stored run log is missing required fields, starting fresh")
		return NewLog(info, time.Now().UTC()), nil
	}
	l.restore()
	s.logger.Info("resuming from stored run log",
		"status", l.OverallStatus, "processed", l.ProcessedCount())
	return l, nil
}

// Save replaces the stored state with l inside one transaction, so a crash
// mid-save leaves the previous consistent state behind.
func (s *SQLiteStore) Save(l *Log) error {
	l.normalize()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}

	endTime := ""
	if !l.EndTime.IsZero() {
		endTime = l.EndTime.UTC().Format(time.RFC3339Nano)
	}
	if _, err := tx.Exec(`
		INSERT INTO run_meta (id, run_id, input_file_path, start_time, end_time,
			total_duration_seconds, model_used_general, outline_model_used,
			content_model_used, overall_status, outline_file_path,
			content_file_path_planned, content_file_path, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			input_file_path = excluded.input_file_path,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			total_duration_seconds = excluded.total_duration_seconds,
			model_used_general = excluded.model_used_general,
			outline_model_used = excluded.outline_model_used,
			content_model_used = excluded.content_model_used,
			overall_status = excluded.overall_status,
			outline_file_path = excluded.outline_file_path,
			content_file_path_planned = excluded.content_file_path_planned,
			content_file_path = excluded.content_file_path,
			updated_at = excluded.updated_at`,
		l.RunID, l.InputFilePath, l.StartTime.UTC().Format(time.RFC3339Nano), endTime,
		l.TotalDurationSeconds, l.ModelUsedGeneral, l.OutlineModelUsed,
		l.ContentModelUsed, string(l.OverallStatus), l.OutlineFilePath,
		l.ContentFilePathPlanned, l.ContentFilePath,
		time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write run meta: %w", err)
	}

	for _, entry := range l.ProcessedItems {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO processed_items (entry) VALUES (?)`, entry); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write processed item: %w", err)
		}
	}

	// Histories are rewritten wholesale; entries only ever accumulate, so
	// replacing them keeps row order aligned with the log slices.
	if _, err := tx.Exec(`DELETE FROM errors`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear errors: %w", err)
	}
	for _, e := range l.Errors {
		if _, err := tx.Exec(`
			INSERT INTO errors (timestamp, stage, item_key, error, warning, status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.Timestamp.UTC().Format(time.RFC3339Nano), e.Stage, e.ItemKey,
			e.Error, e.Warning, e.Status); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write error entry: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM api_calls`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear api calls: %w", err)
	}
	for _, c := range l.APICalls {
		if _, err := tx.Exec(`
			INSERT INTO api_calls (timestamp, stage, item_key, model, status,
				duration_seconds, prompt_chars, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Timestamp.UTC().Format(time.RFC3339Nano), c.Stage, c.ItemKey,
			c.Model, c.Status, c.DurationSeconds, c.PromptChars, c.Error); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write api call: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, table := range []string{"run_meta", "processed_items", "errors", "api_calls"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) loadProcessed() ([]string, error) {
	rows, err := s.db.Query(`SELECT entry FROM processed_items ORDER BY entry`)
	if err != nil {
		return nil, fmt.Errorf("read processed items: %w", err)
	}
	defer rows.Close()

	items := []string{}
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("scan processed item: %w", err)
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) loadErrors() ([]ErrorEntry, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, stage, item_key, error, warning, status
		FROM errors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read errors: %w", err)
	}
	defer rows.Close()

	entries := []ErrorEntry{}
	for rows.Next() {
		var e ErrorEntry
		var ts string
		if err := rows.Scan(&ts, &e.Stage, &e.ItemKey, &e.Error, &e.Warning, &e.Status); err != nil {
			return nil, fmt.Errorf("scan error entry: %w", err)
		}
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) loadCalls() ([]CallEntry, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, stage, item_key, model, status, duration_seconds,
			prompt_chars, error
		FROM api_calls ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read api calls: %w", err)
	}
	defer rows.Close()

	calls := []CallEntry{}
	for rows.Next() {
		var c CallEntry
		var ts string
		if err := rows.Scan(&ts, &c.Stage, &c.ItemKey, &c.Model, &c.Status,
			&c.DurationSeconds, &c.PromptChars, &c.Error); err != nil {
			return nil, fmt.Errorf("scan api call: %w", err)
		}
		c.Timestamp = parseTime(ts)
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
