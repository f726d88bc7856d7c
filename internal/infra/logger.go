package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. level overrides the environment
// default (debug in development, info elsewhere) when it parses.
func NewLogger(appEnv, level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, appEnv, level)
}

// NewLoggerTo is NewLogger writing to out.
func NewLoggerTo(out io.Writer, appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		lvl = parsed
	}

	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "studio").
		Logger()
}

// Logger aliases zerolog.Logger for packages that only pass it along.
type Logger = zerolog.Logger
