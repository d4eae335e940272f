package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string

	// Format is the output format (json, console, pretty).
	Format string

	// Output is the output destination (stdout, stderr).
	Output string

	// AddSource adds source file and line number to log entries.
	AddSource bool

	// TimeFormat is the time format for timestamps.
	TimeFormat string
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var output io.Writer

	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	return newLogger(cfg, output)
}

func newLogger(cfg LoggingConfig, output io.Writer) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	// Use console writer for pretty output in development
	if format := strings.ToLower(cfg.Format); format == "console" || format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}

	logger := zerolog.New(output).With().Timestamp()
	if cfg.AddSource {
		logger = logger.Caller()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return logger.Logger().Level(level)
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent tags a logger with the name of the component using it.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithRequestContext adds the request correlation fields to a logger.
func WithRequestContext(logger zerolog.Logger, requestID, method, path string) zerolog.Logger {
	return logger.With().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Logger()
}

// WithItemContext adds the item identifier to a logger.
func WithItemContext(logger zerolog.Logger, itemID int64) zerolog.Logger {
	return logger.With().
		Int64("item_id", itemID).
		Logger()
}

// LoggerFromContext returns the logger with the request ID stored in ctx
// attached, or the logger unchanged when ctx carries none.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return logger.With().Str("request_id", id).Logger()
	}
	return logger
}
