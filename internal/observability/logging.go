package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// LogLevelEnv selects the level for every component logger.
	LogLevelEnv = "VAULT_LOG_LEVEL"
	// LogFormatEnv selects json (default) or console output.
	LogFormatEnv = "VAULT_LOG_FORMAT"
)

// NewLogger returns a component logger configured from the environment.
func NewLogger(component string) zerolog.Logger {
	return NewLoggerWithLevel(component, ParseLogLevel(os.Getenv(LogLevelEnv)))
}

// NewLoggerWithLevel returns a component logger at level, writing JSON to
// stdout unless VAULT_LOG_FORMAT=console.
func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return NewLoggerTo(logOutput(os.Getenv(LogFormatEnv)), component, level)
}

// NewLoggerTo is NewLoggerWithLevel with an explicit writer.
func NewLoggerTo(w io.Writer, component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// NopLogger discards everything.
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// ParseLogLevel accepts any zerolog level name, case-insensitively. Empty or
// unknown values mean info.
func ParseLogLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func logOutput(format string) io.Writer {
	if strings.EqualFold(format, "console") {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05.000"}
	}
	return os.Stdout
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
