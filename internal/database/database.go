// Package database provides database connectivity and session management for
// the item service. Two engines are supported: PostgreSQL over pgxpool and an
// embedded SQLite store over database/sql. Both hand out Session values that
// accept the same PostgreSQL-style SQL ($1, $2, ... placeholders).
package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Database operational constants.
const (
	// HealthCheckTimeout is the maximum time to wait for a health check ping.
	HealthCheckTimeout = 5 * time.Second
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ErrSessionClosed is returned when a session is used after Commit or Close.
var ErrSessionClosed = errors.New("session closed")

// HealthStatus contains database health information.
type HealthStatus struct {
	Status            string `json:"status"`
	Backend           string `json:"backend"`
	Error             string `json:"error,omitempty"`
	TotalConns        int32  `json:"total_conns"`
	AcquiredConns     int32  `json:"acquired_conns"`
	IdleConns         int32  `json:"idle_conns"`
	ConstructingConns int32  `json:"constructing_conns"`
	MaxConns          int32  `json:"max_conns"`
}

// Healthy reports whether the last ping succeeded.
func (h HealthStatus) Healthy() bool {
	return h.Status == StatusHealthy
}

// Row is a single result row. It is satisfied by pgx.Row and *sql.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a result set. It is satisfied by pgx.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Session is a unit of work bound to one pooled connection.
//
// Statements use $n placeholders regardless of the backend. Nothing is
// persisted until Commit succeeds. Close rolls back anything not committed and
// returns the connection to the pool; it is safe to call more than once and
// still releases the connection when ctx has been cancelled.
type Session interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Commit(ctx context.Context) error
	Close(ctx context.Context) error
}

// Engine owns the connection pool of one backend.
type Engine interface {
	// Backend returns the backend name (config.BackendSQLite or config.BackendPostgres).
	Backend() string
	// NewSession checks out a connection and starts a unit of work on it.
	NewSession(ctx context.Context) (Session, error)
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error
	// Health returns pool statistics and the result of a ping.
	Health(ctx context.Context) HealthStatus
	// Close closes the pool.
	Close()
}

// IsNoRows reports whether err means a query matched no rows, for either
// backend.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// ping runs fn with HealthCheckTimeout applied and fills in the status.
func ping(ctx context.Context, health *HealthStatus, fn func(context.Context) error) {
	pingCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	if err := fn(pingCtx); err != nil {
		health.Status = StatusUnhealthy
		health.Error = err.Error()
		return
	}
	health.Status = StatusHealthy
}
