package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidqueue/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives human-facing output. Nil means stdout.
	Console io.Writer
	// FilePath, when set, receives a JSON copy of every record.
	FilePath    string
	SessionID   string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	var primary slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		primary = newConsoleHandler(console, levelVar, addSource)
	case "json":
		primary = newJSONHandler(console, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	handlers := []slog.Handler{primary}
	if path := strings.TrimSpace(opts.FilePath); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		handlers = append(handlers, newJSONHandler(file, levelVar, addSource))
	}

	handler := newFanoutHandler(handlers...)
	if opts.SessionID != "" {
		handler = newSessionIDHandler(handler, opts.SessionID)
	}
	return slog.New(handler), nil
}

// NewFromConfig creates a logger using application config defaults. When
// sessionID is non-empty the daemon log file is written under the configured
// log directory and every record carries the session identifier.
func NewFromConfig(cfg *config.Config, sessionID string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}
	opts := Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		SessionID: sessionID,
	}
	if sessionID != "" && cfg.Paths.LogDir != "" {
		opts.FilePath = DaemonLogPath(cfg.Paths.LogDir, time.Now())
	}
	return New(opts)
}

// DaemonLogPath returns the per-run daemon log file name inside dir.
func DaemonLogPath(dir string, started time.Time) string {
	return filepath.Join(dir, "vidqueue-"+started.UTC().Format("20060102T150405")+".log")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	}
	return slog.NewJSONHandler(w, &opts)
}
