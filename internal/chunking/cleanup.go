package chunking

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"vidqueue/internal/logging"
)

// intermediateName matches the files JobChunks plans: numbered video chunks,
// the audio chunk, the concat manifest and the concatenated video.
var intermediateName = regexp.MustCompile(`^vq-[0-9a-f]{8}_(?:[0-9]{3}\.[A-Za-z0-9]+|audio\.mka|concat\.txt|video\.[A-Za-z0-9]+)$`)

// IsIntermediate reports whether name is a chunk intermediate file name.
func IsIntermediate(name string) bool {
	return intermediateName.MatchString(name)
}

// CleanStaleResult contains the outcome of a stale intermediate sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its removal error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes chunk intermediates in tempDir that were last modified
// more than maxAge ago. Files with other names and subdirectories are left
// alone.
func CleanStale(ctx context.Context, tempDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	tempDir = strings.TrimSpace(tempDir)
	if tempDir == "" {
		return result
	}
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: tempDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.Type().IsRegular() || !IsIntermediate(entry.Name()) {
			continue
		}
		path := filepath.Join(tempDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale chunk file",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "chunk_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check temp_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
	}

	if logger != nil && len(result.Removed) > 0 {
		logger.Info("removed stale chunk files",
			logging.Int("count", len(result.Removed)),
			logging.String("dir", tempDir),
			logging.String(logging.FieldEventType, "chunk_cleanup"),
		)
	}
	return result
}
