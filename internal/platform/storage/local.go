package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores files under a single root directory on disk.
type Local struct {
	root string
}

// NewLocal creates a local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("platform/storage: root directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("platform/storage: create root: %w", err)
	}
	return &Local{root: dir}, nil
}

func (l *Local) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("platform/storage: invalid path %q", relPath)
	}
	return filepath.Join(l.root, clean), nil
}

// Write persists data at relPath, creating parent directories.
func (l *Local) Write(relPath string, data []byte) error {
	abs, err := l.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("platform/storage: mkdir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("platform/storage: write %s: %w", relPath, err)
	}
	return nil
}

// DeleteIfExists removes the file at relPath; a missing file is not an error.
func (l *Local) DeleteIfExists(relPath string) error {
	abs, err := l.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("platform/storage: delete %s: %w", relPath, err)
	}
	return nil
}
