package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"timelapse/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level string
	// Format is "console" (default) or "json".
	Format string
	// Path appends to a file; empty writes to Writer, or stdout.
	Path   string
	Writer io.Writer
	// Development adds caller locations regardless of level.
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := newHandler(opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

func newHandler(opts Options) (slog.Handler, error) {
	level := ParseLevel(opts.Level)
	withSource := opts.Development || level <= slog.LevelDebug

	var build func(io.Writer, slog.Level, bool) slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		build = newConsoleHandler
	case "json":
		build = newJSONHandler
	default:
		return nil, fmt.Errorf("log format %q: want console or json", opts.Format)
	}

	w := opts.Writer
	if path := strings.TrimSpace(opts.Path); path != "" {
		file, err := openLogFile(path)
		if err != nil {
			return nil, err
		}
		w = file
	}
	if w == nil {
		w = os.Stdout
	}
	return build(w, level, withSource), nil
}

// NewFromConfig creates a stdout logger using application config defaults.
// CLI commands use it; the daemon uses NewDaemon.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}

// NewDaemon creates the daemon logger: stdout in the configured format, teed
// into a JSON session log at logPath. Every record carries sessionID and the
// device id so logs shipped off several cameras stay attributable.
func NewDaemon(cfg *config.Config, logPath, sessionID string) (*slog.Logger, error) {
	level, format, deviceID := "info", "console", ""
	if cfg != nil {
		level, format, deviceID = cfg.Logging.Level, cfg.Logging.Format, cfg.Device.ID
	}
	console, err := newHandler(Options{Level: level, Format: format})
	if err != nil {
		return nil, err
	}
	var file slog.Handler
	if strings.TrimSpace(logPath) != "" {
		file, err = newHandler(Options{Level: level, Format: "json", Path: logPath})
		if err != nil {
			return nil, err
		}
	}
	process := []slog.Attr{slog.String(FieldSessionID, sessionID)}
	if deviceID != "" {
		process = append(process, slog.String(FieldDevice, deviceID))
	}
	return slog.New(newTeeHandler(console, file).WithAttrs(process)), nil
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return level
	}
	return slog.LevelInfo
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

// newJSONHandler writes the session log format read back by the logs
// package: "ts" (UTC, millisecond precision), lowercase "level", "msg".
func newJSONHandler(w io.Writer, level slog.Level, withSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   withSource,
		ReplaceAttr: sessionLogAttr,
	})
}

func sessionLogAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		return slog.String("ts", a.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	case slog.LevelKey:
		return slog.String("level", strings.ToLower(a.Value.String()))
	case slog.SourceKey:
		if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String("source", fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return a
}
