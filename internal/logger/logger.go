// Package logger builds the structured loggers used by the server.
//
// The MCP layer and the CLI log through log/slog with a JSON handler. The
// HTTP-facing packages (fetcher, rtd, resolver) log through zerolog. Both
// default to stderr so the STDIO transport keeps stdout for protocol traffic.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger creates a new structured logger with the specified log level.
// Valid levels are: debug, info, warn, error
func NewLogger(level string, output io.Writer) (*slog.Logger, error) {
	var slogLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}

	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	handler := slog.NewJSONHandler(output, opts)
	logger := slog.New(handler)

	return logger, nil
}

// NewZerolog creates a console zerolog logger filtered at the given level.
// It accepts the same level names as NewLogger.
func NewZerolog(level string, output io.Writer) (zerolog.Logger, error) {
	var zlLevel zerolog.Level

	switch strings.ToLower(level) {
	case "debug":
		zlLevel = zerolog.DebugLevel
	case "info":
		zlLevel = zerolog.InfoLevel
	case "warn":
		zlLevel = zerolog.WarnLevel
	case "error":
		zlLevel = zerolog.ErrorLevel
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", level)
	}

	if output == nil {
		output = os.Stderr
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: output, NoColor: true}).
		Level(zlLevel).
		With().
		Timestamp().
		Logger(), nil
}

// Default creates a logger with info level and stderr output
func Default() *slog.Logger {
	logger, _ := NewLogger("info", os.Stderr)
	return logger
}
