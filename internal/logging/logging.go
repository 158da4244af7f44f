// Package logging builds the zerolog logger shared by the bisque command and
// the components it wires together.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the logger's level, encoding and destination.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format is console (human readable) or json. Empty means console.
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`

	// Output is stdout, stderr or a file path appended to. Empty means
	// stderr.
	Output string `yaml:"output"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{Level: "info", Format: "console", Output: "stderr"}
}

// New returns a logger for cfg. The returned closer releases the output
// file, if one was opened.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
		toFile bool
	)
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("logging: open %s: %w", cfg.Output, err)
		}
		w, closer, toFile = f, f, true
	}

	switch cfg.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: toFile}
	case "json":
	default:
		_ = closer.Close()
		return zerolog.Nop(), nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	return NewWriter(w, level), closer, nil
}

// NewWriter returns a timestamped logger at level writing to w.
func NewWriter(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ParseLevel converts a level name to a zerolog.Level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", level)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
