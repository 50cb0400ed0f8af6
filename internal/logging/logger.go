// Package logging builds the slog logger used across mvlens.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the environment prefix for logging settings (MVLENS_LOG_LEVEL, ...).
const EnvPrefix = "MVLENS_LOG"

// Config contains logging configuration.
type Config struct {
	Level    string `envconfig:"LEVEL" default:"info"`
	Format   string `envconfig:"FORMAT" default:"text"`
	Output   string `envconfig:"OUTPUT" default:"stderr"`
	FilePath string `envconfig:"FILE_PATH" default:""`
}

// LoadConfig reads logging configuration from the environment.
func LoadConfig() (Config, error) {
	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return Config{}, fmt.Errorf("load logging config from env: %w", err)
	}
	return c, nil
}

// New creates a logger from cfg. The returned closer releases the log file,
// if one was opened, and is never nil.
func New(cfg Config) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }
	var out io.Writer
	closer := noop
	switch strings.ToLower(cfg.Output) {
	case "file", "both":
		if cfg.FilePath == "" {
			return nil, noop, fmt.Errorf("logging: output %q requires a file path", cfg.Output)
		}
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, noop, err
		}
		closer = f.Close
		out = f
		if strings.EqualFold(cfg.Output, "both") {
			out = io.MultiWriter(os.Stderr, f)
		}
	case "stdout":
		out = os.Stdout
	default:
		out = os.Stderr
	}
	return NewWithWriter(out, cfg), closer, nil
}

// NewWithWriter creates a logger that writes to w.
func NewWithWriter(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Discard returns a logger that drops every record. Used as the nil default
// by components and in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
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

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file %s: %w", path, err)
	}
	return f, nil
}
