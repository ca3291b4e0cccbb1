// Package local writes saved pages and their assets to the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotDirectory is returned when the output path exists but is a file.
var ErrNotDirectory = errors.New("path exists and is not a directory")

const writeCheckFile = ".page-loader-write-check"

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the output directory every write is confined to.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes files below a single base directory.
type Store struct {
	baseDir string
}

// CheckDir succeeds when dir does not exist yet or is a directory.
func CheckDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	return nil
}

// New creates the base directory if needed and verifies it is writable.
// Pre-existing directories are fine, so repeated runs reuse the same output.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := CheckDir(cfg.BaseDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	check := filepath.Join(cfg.BaseDir, writeCheckFile)
	if err := os.WriteFile(check, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(check); err != nil {
		return nil, fmt.Errorf("failed to clean up write check file: %w", err)
	}

	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	return &Store{baseDir: base}, nil
}

// BaseDir returns the directory the store writes into.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// EnsureDir creates a subdirectory of the base directory and returns its
// absolute path. An existing directory is not an error.
func (s *Store) EnsureDir(name string) (string, error) {
	full, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(full, 0o750); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", full, err)
	}
	return full, nil
}

// WriteFile streams data into path, replacing any existing file. The path may
// be absolute or relative to the base directory but must stay inside it.
// A failed copy can leave a truncated file behind.
func (s *Store) WriteFile(ctx context.Context, path string, data io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context canceled: %w", err)
	}
	full, err := s.resolve(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// #nosec G304 -- full is confined to baseDir by resolve.
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	n, copyErr := io.Copy(f, data)
	closeErr := f.Close()
	if copyErr != nil {
		return n, fmt.Errorf("failed to write file: %w", copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("failed to close file: %w", closeErr)
	}
	return n, nil
}

func (s *Store) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.baseDir, path)
	}
	full = filepath.Clean(full)
	prefix := s.baseDir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(full, prefix) {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}
	return full, nil
}
