package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileStore persists the log as an indented JSON file next to the run's
// output, the human-inspectable default.
type FileStore struct {
	path   string
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, logger: slog.Default()}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(info RunInfo, force bool) (*Log, error) {
	if force {
		s.logger.Info("ignoring existing run log, forced restart", "path", s.path)
		return NewLog(info, time.Now().UTC()), nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewLog(info, time.Now().UTC()), nil
	}
	if err != nil {
		s.logger.Warn("could not read existing run log, starting fresh",
			"path", s.path, "error", err)
		return NewLog(info, time.Now().UTC()), nil
	}

	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		s.logger.Warn("existing run log is not valid JSON, starting fresh",
			"path", s.path, "error", err)
		return NewLog(info, time.Now().UTC()), nil
	}
	if !l.valid() {
		s.logger.Warn("existing run log is missing required fields, starting fresh",
			"path", s.path)
		return NewLog(info, time.Now().UTC()), nil
	}

	l.restore()
	s.logger.Info("resuming from existing run log",
		"path", s.path, "status", l.OverallStatus, "processed", l.ProcessedCount())
	return &l, nil
}

func (s *FileStore) Save(l *Log) error {
	l.normalize()
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create run log directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace run log: %w", err)
	}
	return nil
}
