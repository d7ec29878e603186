// Package rules stores the group rules document as a plain text file.
package rules

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Store reads and overwrites the single rules document. The document is
// never cached; every call hits the file.
type Store struct {
	logger *slog.Logger
	path   string
}

// New creates a rules store backed by the file at path.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:   path,
		logger: logger,
	}
}

// Read returns the rules text, or an empty string if the document is
// missing or unreadable. Never errors.
func (s *Store) Read() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Debug("rules document unreadable",
			"path", s.path,
			"error", err)
		return ""
	}
	return string(data)
}

// Write replaces the rules document with content verbatim. Returns false on
// any I/O failure. The write goes through a temp file and rename so a
// failed write never truncates the existing document.
func (s *Store) Write(content string) bool {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, ".rules-*")
	if err != nil {
		s.logger.Warn("failed to create temp rules file",
			"dir", dir,
			"error", err)
		return false
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		s.logger.Warn("failed to write rules text", "path", tmpName, "error", err)
		tmp.Close()        //nolint:errcheck,gosec // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return false
	}
	if err := tmp.Close(); err != nil {
		s.logger.Warn("failed to close rules file", "path", tmpName, "error", err)
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return false
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		s.logger.Warn("failed to replace rules document",
			"path", s.path,
			"error", err)
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return false
	}

	s.logger.Info("rules document replaced",
		"path", s.path,
		"bytes", len(content))

	return true
}
