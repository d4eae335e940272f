package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"

	"github.com/helixir/item-service/internal/config"
	"github.com/helixir/item-service/internal/domain"
	"github.com/helixir/item-service/internal/observability"
)

// PgxPool is the part of *pgxpool.Pool the PostgreSQL engine depends on.
// pgxmock pools satisfy it as well.
type PgxPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresEngine is the PostgreSQL backend.
type PostgresEngine struct {
	pool   PgxPool
	raw    *pgxpool.Pool // nil when built from a mock
	logger zerolog.Logger
}

// Compile-time check that *PostgresEngine implements Engine.
var _ Engine = (*PostgresEngine)(nil)

// NewPostgresEngine creates the connection pool described by cfg and verifies
// it with a ping. It fails with domain.ErrConfiguration when cfg does not
// resolve to a connection string.
func NewPostgresEngine(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*PostgresEngine, error) {
	dsn := cfg.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres requires database host and name", domain.ErrConfiguration)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Configure pool settings
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	// Configure connection settings
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   observability.NewPgxLogger(logger),
		LogLevel: observability.TraceLogLevel(logger.GetLevel().String()),
	}

	// Add logging hooks
	poolConfig.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		logger.Trace().Msg("acquiring connection from pool")
		return true
	}

	poolConfig.AfterRelease = func(conn *pgx.Conn) bool {
		logger.Trace().Msg("releasing connection to pool")
		return true
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int32("max_conns", poolConfig.MaxConns).
		Int32("min_conns", poolConfig.MinConns).
		Msg("database connection pool established")

	return &PostgresEngine{pool: pool, raw: pool, logger: logger}, nil
}

// NewPostgresEngineFromPool wraps an existing pool. The pool is closed by
// the engine's Close.
func NewPostgresEngineFromPool(pool PgxPool, logger zerolog.Logger) *PostgresEngine {
	e := &PostgresEngine{pool: pool, logger: logger}
	if p, ok := pool.(*pgxpool.Pool); ok {
		e.raw = p
	}
	return e
}

// Backend returns config.BackendPostgres.
func (e *PostgresEngine) Backend() string {
	return config.BackendPostgres
}

// Pool returns the underlying *pgxpool.Pool, or nil when the engine was
// built over another PgxPool implementation.
func (e *PostgresEngine) Pool() *pgxpool.Pool {
	return e.raw
}

// NewSession begins a transaction on a pooled connection.
func (e *PostgresEngine) NewSession(ctx context.Context) (Session, error) {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgSession{tx: tx}, nil
}

// Ping verifies the database connection is alive.
func (e *PostgresEngine) Ping(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

// Health returns database health information as a typed struct.
func (e *PostgresEngine) Health(ctx context.Context) HealthStatus {
	health := HealthStatus{Backend: config.BackendPostgres}
	if e.raw != nil {
		stat := e.raw.Stat()
		health.TotalConns = stat.TotalConns()
		health.AcquiredConns = stat.AcquiredConns()
		health.IdleConns = stat.IdleConns()
		health.ConstructingConns = stat.ConstructingConns()
		health.MaxConns = stat.MaxConns()
	}

	ping(ctx, &health, e.pool.Ping)
	return health
}

// Close closes the database connection pool.
func (e *PostgresEngine) Close() {
	if e.pool != nil {
		e.pool.Close()
		e.logger.Info().Msg("database connection pool closed")
	}
}

// pgSession is a Session over a pgx transaction.
type pgSession struct {
	tx   pgx.Tx
	done bool
}

func (s *pgSession) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if s.done {
		return 0, ErrSessionClosed
	}
	tag, err := s.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgSession) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	if s.done {
		return nil, ErrSessionClosed
	}
	rows, err := s.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *pgSession) QueryRow(ctx context.Context, sql string, args ...any) Row {
	if s.done {
		return errRow{err: ErrSessionClosed}
	}
	return s.tx.QueryRow(ctx, sql, args...)
}

func (s *pgSession) Commit(ctx context.Context) error {
	if s.done {
		return ErrSessionClosed
	}
	// pgx rolls the transaction back when commit fails, so the session is
	// finished either way.
	s.done = true
	return s.tx.Commit(ctx)
}

func (s *pgSession) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// errRow is a Row that fails every Scan with err.
type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}
