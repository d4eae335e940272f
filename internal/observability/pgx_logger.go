package observability

import (
	"context"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// PgxLogger adapts zerolog to pgx's tracelog.Logger interface.
type PgxLogger struct {
	logger zerolog.Logger
}

// NewPgxLogger creates a PgxLogger that delegates to the given
// zerolog.Logger, automatically adding a "component":"pgx" field.
func NewPgxLogger(logger zerolog.Logger) *PgxLogger {
	return &PgxLogger{logger: logger.With().Str("component", "pgx").Logger()}
}

// Log implements tracelog.Logger.
func (l *PgxLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	logger := LoggerFromContext(ctx, l.logger)
	logger.WithLevel(pgxLevel(level)).Fields(data).Msg(msg)
}

// TraceLogLevel maps a configured log level name to the pgx trace level.
// Per-query logging is only enabled at trace.
func TraceLogLevel(level string) tracelog.LogLevel {
	switch parseLevel(level) {
	case zerolog.TraceLevel:
		return tracelog.LogLevelDebug
	case zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel:
		return tracelog.LogLevelWarn
	default:
		return tracelog.LogLevelError
	}
}

func pgxLevel(level tracelog.LogLevel) zerolog.Level {
	switch level {
	case tracelog.LogLevelTrace:
		return zerolog.TraceLevel
	case tracelog.LogLevelDebug:
		return zerolog.DebugLevel
	case tracelog.LogLevelInfo:
		return zerolog.InfoLevel
	case tracelog.LogLevelWarn:
		return zerolog.WarnLevel
	case tracelog.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}
