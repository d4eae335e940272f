package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/helixir/item-service/internal/config"
	"github.com/helixir/item-service/migrations"
)

// MigrationsTable is the bookkeeping table golang-migrate maintains.
const MigrationsTable = "schema_migrations"

// Migrator handles database migrations.
type Migrator struct {
	migrate *migrate.Migrate
	sqlDB   *sql.DB // dedicated database/sql handle, must be closed
	backend string
	logger  zerolog.Logger
}

// NewMigrator creates a migrator for engine.
//
// Migrations are read from the embedded migrations package unless
// migrationsPath is set, in which case they are read from
// <migrationsPath>/<backend> on disk.
func NewMigrator(engine Engine, migrationsPath string, logger zerolog.Logger) (*Migrator, error) {
	// Validate inputs
	if engine == nil {
		return nil, fmt.Errorf("database engine is required")
	}

	backend := engine.Backend()
	logger = logger.With().Str("component", "migrator").Str("backend", backend).Logger()

	// Validate migrations path exists before creating database connections
	if migrationsPath != "" {
		migrationsPath = filepath.Join(migrationsPath, backend)
		if _, err := os.Stat(migrationsPath); err != nil {
			return nil, fmt.Errorf("migrations path validation failed: %w", err)
		}
	}

	sqlDB, driver, err := openMigrationDriver(engine)
	if err != nil {
		return nil, err
	}

	var m *migrate.Migrate
	if migrationsPath != "" {
		m, err = migrate.NewWithDatabaseInstance(
			fmt.Sprintf("file://%s", migrationsPath),
			backend,
			driver,
		)
	} else {
		src, srcErr := iofs.New(migrations.FS, backend)
		if srcErr != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to open embedded migrations: %w", srcErr)
		}
		m, err = migrate.NewWithInstance("iofs", src, backend, driver)
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	m.Log = migrateLogger{logger: logger}

	return &Migrator{
		migrate: m,
		sqlDB:   sqlDB,
		backend: backend,
		logger:  logger,
	}, nil
}

// openMigrationDriver returns a database/sql handle dedicated to migrations
// together with the golang-migrate driver over it. Closing the handle never
// closes the engine's own pool.
func openMigrationDriver(engine Engine) (*sql.DB, database.Driver, error) {
	switch e := engine.(type) {
	case *PostgresEngine:
		if e.Pool() == nil {
			return nil, nil, fmt.Errorf("database pool not initialized")
		}

		// Get a standard database/sql connection from pgx pool
		sqlDB := stdlib.OpenDBFromPool(e.Pool())
		driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
			MigrationsTable: MigrationsTable,
		})
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to create postgres driver: %w", err)
		}
		return sqlDB, driver, nil

	case *SQLiteEngine:
		sqlDB, err := sql.Open("sqlite", e.dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		driver, err := sqlite.WithInstance(sqlDB, &sqlite.Config{
			MigrationsTable: MigrationsTable,
		})
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to create sqlite driver: %w", err)
		}
		return sqlDB, driver, nil

	default:
		return nil, nil, fmt.Errorf("migrations are not supported for %T", engine)
	}
}

// Up runs all pending migrations.
func (m *Migrator) Up() error {
	m.logger.Info().Msg("running database migrations...")

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("no migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.logger.Info().Msg("migrations completed successfully")
	return nil
}

// Down rolls back all migrations.
func (m *Migrator) Down() error {
	m.logger.Warn().Msg("rolling back all migrations...")

	if err := m.migrate.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}

	m.logger.Info().Msg("migrations rolled back successfully")
	return nil
}

// Steps runs n migrations (positive = up, negative = down).
func (m *Migrator) Steps(n int) error {
	m.logger.Info().Int("steps", n).Msg("running migration steps...")

	if err := m.migrate.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("no migrations to apply")
			return nil
		}
		// Handle "file does not exist" which occurs when at latest version
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Info().Msg("no more migrations available")
			return nil
		}
		return fmt.Errorf("failed to run migration steps: %w", err)
	}

	m.logger.Info().Int("steps", n).Msg("migration steps completed successfully")
	return nil
}

// Version returns the current migration version.
func (m *Migrator) Version() (uint, bool, error) {
	return m.migrate.Version()
}

// Force sets the migration version without running migrations.
// This is useful for recovering from failed migrations.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing migration version...")
	return m.migrate.Force(version)
}

// Close closes the migrator and releases resources.
// If both source and database close operations fail, both errors are combined.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()

	// The driver usually closes the handle already; closing twice is harmless.
	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}

	if sourceErr != nil && dbErr != nil {
		return fmt.Errorf("failed to close migrator: source error: %v, database error: %w", sourceErr, dbErr)
	}
	if sourceErr != nil {
		return fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}

// DropAll drops all tables in the database.
// WARNING: This is destructive and should only be used in testing.
func (m *Migrator) DropAll() error {
	m.logger.Warn().Msg("dropping all database objects...")
	if m.backend == config.BackendSQLite {
		return m.dropSQLiteTables()
	}
	return m.migrate.Drop()
}

// dropSQLiteTables drops every user table. golang-migrate's sqlite Drop also
// tries to drop sqlite_sequence, which SQLite refuses once an AUTOINCREMENT
// table exists.
func (m *Migrator) dropSQLiteTables() error {
	rows, err := m.sqlDB.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("failed to list sqlite tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan sqlite table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("failed to list sqlite tables: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("failed to list sqlite tables: %w", err)
	}

	for _, table := range tables {
		if _, err := m.sqlDB.Exec(`DROP TABLE IF EXISTS "` + table + `"`); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// migrateLogger adapts zerolog to golang-migrate's Logger interface.
type migrateLogger struct {
	logger zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}
