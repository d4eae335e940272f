package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/helixir/item-service/internal/config"
)

// SQLite pool limits. A single file only takes one writer at a time, so the
// pool is kept small and writers queue on the busy timeout.
const (
	sqliteMaxOpenConns = 5
	sqliteMaxIdleConns = 1
)

// SQLiteEngine is the embedded SQLite backend.
type SQLiteEngine struct {
	db     *sql.DB
	dsn    string
	path   string
	logger zerolog.Logger
}

// Compile-time check that *SQLiteEngine implements Engine.
var _ Engine = (*SQLiteEngine)(nil)

// NewSQLiteEngine opens (and creates if needed) the database file named by
// cfg.SQLitePath.
func NewSQLiteEngine(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*SQLiteEngine, error) {
	dsn := cfg.DSN()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(sqliteMaxOpenConns)
	db.SetMaxIdleConns(sqliteMaxIdleConns)
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	logger.Info().
		Str("path", cfg.SQLitePath).
		Int("max_open_conns", sqliteMaxOpenConns).
		Msg("sqlite database opened")

	return &SQLiteEngine{db: db, dsn: dsn, path: cfg.SQLitePath, logger: logger}, nil
}

// Backend returns config.BackendSQLite.
func (e *SQLiteEngine) Backend() string {
	return config.BackendSQLite
}

// DB returns the underlying *sql.DB.
func (e *SQLiteEngine) DB() *sql.DB {
	return e.db
}

// NewSession begins a transaction on a pooled connection.
func (e *SQLiteEngine) NewSession(ctx context.Context) (Session, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteSession{tx: tx}, nil
}

// Ping verifies the database file is usable.
func (e *SQLiteEngine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Health returns database health information as a typed struct.
func (e *SQLiteEngine) Health(ctx context.Context) HealthStatus {
	stats := e.db.Stats()
	health := HealthStatus{
		Backend:       config.BackendSQLite,
		TotalConns:    int32(stats.OpenConnections),
		AcquiredConns: int32(stats.InUse),
		IdleConns:     int32(stats.Idle),
		MaxConns:      int32(stats.MaxOpenConnections),
	}

	ping(ctx, &health, e.db.PingContext)
	return health
}

// Close closes the database.
func (e *SQLiteEngine) Close() {
	if err := e.db.Close(); err != nil {
		e.logger.Error().Err(err).Msg("failed to close sqlite database")
		return
	}
	e.logger.Info().Str("path", e.path).Msg("sqlite database closed")
}

// sqliteSession is a Session over a database/sql transaction.
type sqliteSession struct {
	tx   *sql.Tx
	done bool
}

func (s *sqliteSession) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if s.done {
		return 0, ErrSessionClosed
	}
	query, args = rebind(query, args)
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteSession) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if s.done {
		return nil, ErrSessionClosed
	}
	query, args = rebind(query, args)
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (s *sqliteSession) QueryRow(ctx context.Context, query string, args ...any) Row {
	if s.done {
		return errRow{err: ErrSessionClosed}
	}
	query, args = rebind(query, args)
	return s.tx.QueryRowContext(ctx, query, args...)
}

func (s *sqliteSession) Commit(ctx context.Context) error {
	if s.done {
		return ErrSessionClosed
	}
	s.done = true
	return s.tx.Commit()
}

func (s *sqliteSession) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// sqlRows adapts *sql.Rows to Rows.
type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

// rebind rewrites $n placeholders to positional ? placeholders and orders
// args to match. Placeholders must not appear inside string literals.
func rebind(query string, args []any) (string, []any) {
	if !strings.Contains(query, "$") {
		return query, args
	}

	var b strings.Builder
	b.Grow(len(query))
	out := make([]any, 0, len(args))

	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		n, err := strconv.Atoi(query[i+1 : j])
		if err != nil || n < 1 || n > len(args) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
		out = append(out, args[n-1])
		i = j - 1
	}
	return b.String(), out
}
