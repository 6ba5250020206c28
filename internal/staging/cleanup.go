// Package staging manages the scratch area under the data directory where
// transcription keeps per-job work directories. A crashed worker leaves its
// directory behind; the daemon sweeps old ones at startup.
package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/logging"
)

// DefaultMaxAge is how old a work directory must be before it is swept.
const DefaultMaxAge = 6 * time.Hour

// CleanupResult lists removed directories and per-directory failures.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// DirInfo describes one work directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// CleanStale removes work directories under dir last modified before maxAge
// ago. A missing dir is not an error.
func CleanStale(ctx context.Context, dir string, maxAge time.Duration, logger *slog.Logger) CleanupResult {
	var result CleanupResult
	if logger == nil {
		logger = logging.NewNop()
	}
	dirs, err := List(dir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, d := range dirs {
		if ctx.Err() != nil {
			break
		}
		if !d.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(d.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: d.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale work directory", "scratch_cleanup_failed",
				logging.String("path", d.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check data_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, d.Path)
		logger.Info("removed stale work directory",
			logging.String("path", d.Path),
			logging.Duration("age", time.Since(d.ModTime).Truncate(time.Second)),
			logging.Int64("bytes", d.Size),
			logging.String(logging.FieldEventType, "scratch_cleanup"),
		)
	}
	return result
}

// List returns the work directories under dir with their total size.
func List(dir string) ([]DirInfo, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    dirSize(path),
		})
	}
	return dirs, nil
}

// dirSize is best effort; unreadable entries count as zero.
func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
