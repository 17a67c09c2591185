package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("fundd storage path must be configured")

const defaultFilePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"

// FileDSN converts a filesystem path into an on-disk SQLite DSN with sensible
// defaults. Paths already carrying a file: scheme pass through untouched.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	if trimmed == ":memory:" || strings.HasPrefix(trimmed, "file:") {
		return trimmed, nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}
