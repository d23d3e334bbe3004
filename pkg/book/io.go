package book

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadBook reads an input or outlined tree from a JSON file.
func LoadBook(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read book file: %w", err)
	}
	var b Book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse book file %s: %w", path, err)
	}
	return &b, nil
}

// LoadContentBook reads a content tree from a JSON file.
func LoadContentBook(path string) (*ContentBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	var b ContentBook
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse content file %s: %w", path, err)
	}
	return &b, nil
}

// WriteJSON writes v to path as indented JSON, creating parent directories
// as needed. The bytes go to a temporary file in the same directory first
// and are renamed into place, so a crash mid-write never leaves a truncated
// file where a good one used to be.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
