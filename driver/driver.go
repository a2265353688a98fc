package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fleetprint/storage"
)

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// Driver submits documents to a named OS printer queue.
type Driver interface {
	// Submit hands localPath to the OS print system for the named queue.
	// The returned error carries the underlying command output so the
	// failure classifier can see phrases like "printer not found".
	Submit(ctx context.Context, localPath string, settings storage.PrintSettings, printerName string) error
}

// FileStore resolves a job's file reference to a local path.
type FileStore interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// NewDriver returns the platform print driver.
func NewDriver(logger Logger) Driver {
	return newPlatformDriver(logger)
}

// LocalFileStore serves file references from a base directory. References
// are relative paths; anything escaping the base directory is rejected.
type LocalFileStore struct {
	baseDir string
}

// NewLocalFileStore creates a file store rooted at baseDir.
func NewLocalFileStore(baseDir string) *LocalFileStore {
	return &LocalFileStore{baseDir: baseDir}
}

// Fetch resolves ref inside the base directory and verifies the file exists.
func (s *LocalFileStore) Fetch(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("file access error: empty file reference")
	}
	clean := filepath.Clean(ref)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("file access error: reference %q escapes store", ref)
	}
	path := filepath.Join(s.baseDir, clean)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file access error: no such file %q: %w", ref, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("file access error: %q is a directory", ref)
	}
	return path, nil
}

// SeparatorPage writes a minimal separator document and returns its path.
// A single form feed ejects one page on any text-capable queue, which is
// enough to keep consecutive jobs from interleaving in the output tray.
func SeparatorPage(dir string) (string, error) {
	path := filepath.Join(dir, "separator.txt")
	if err := os.WriteFile(path, []byte{'\f'}, 0o644); err != nil {
		return "", fmt.Errorf("failed to write separator page: %w", err)
	}
	return path, nil
}
