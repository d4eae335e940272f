// Package main provides a CLI tool for database migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/item-service/internal/config"
	"github.com/helixir/item-service/internal/database"
	"github.com/helixir/item-service/internal/observability"
)

// connectTimeout bounds opening the database before migrating.
const connectTimeout = 30 * time.Second

// action is the single migration operation requested on the command line.
type action int

const (
	actionNone action = iota
	actionUp
	actionDown
	actionSteps
	actionVersion
	actionForce
)

// options holds the parsed command line.
type options struct {
	action         action
	steps          int
	forceVersion   int
	migrationsPath string
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	// Load configuration (database settings from env/config file).
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging with console output for the CLI tool.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	})
	logger = observability.WithComponent(logger, "migrate")

	// Allow CLI flag to override migration path.
	if opts.migrationsPath != "" {
		cfg.Database.MigrationPath = opts.migrationsPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	engine, err := database.OpenEngine(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer engine.Close()
	logger.Info().Str("backend", engine.Backend()).Msg("database connection established")

	return execute(engine, cfg.Database.MigrationPath, opts, logger)
}

// parseFlags parses args and checks that exactly one action was requested.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	up := fs.Bool("up", false, "Run all pending migrations")
	down := fs.Bool("down", false, "Roll back all migrations")
	steps := fs.Int("steps", 0, "Run N migration steps (positive=up, negative=down)")
	version := fs.Bool("version", false, "Print the current migration version")
	force := fs.Int("force", -1, "Force set migration version (use to recover from failed migrations)")
	migrationsPath := fs.String("path", "", "Read migrations from DIR/<backend> instead of the embedded set")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		steps:          *steps,
		forceVersion:   *force,
		migrationsPath: *migrationsPath,
	}

	// Validate that exactly one action is specified.
	actionCount := 0
	if *up {
		opts.action = actionUp
		actionCount++
	}
	if *down {
		opts.action = actionDown
		actionCount++
	}
	if *steps != 0 {
		opts.action = actionSteps
		actionCount++
	}
	if *version {
		opts.action = actionVersion
		actionCount++
	}
	if *force >= 0 {
		opts.action = actionForce
		actionCount++
	}

	if actionCount == 0 {
		fs.Usage()
		fmt.Fprintln(stderr, "\nPlease specify one of: -up, -down, -steps N, -version, -force V")
		return options{}, errors.New("no action specified")
	}

	if actionCount > 1 {
		return options{}, errors.New("specify only one action at a time")
	}

	return opts, nil
}

// execute runs the requested action against engine.
func execute(engine database.Engine, migrationsPath string, opts options, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(engine, migrationsPath, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	// Execute the requested action.
	switch opts.action {
	case actionUp:
		logger.Info().Msg("running all pending migrations")
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}

	case actionDown:
		logger.Warn().Msg("rolling back all migrations")
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}

	case actionSteps:
		logger.Info().Int("steps", opts.steps).Msg("running migration steps")
		if err := migrator.Steps(opts.steps); err != nil {
			return fmt.Errorf("migrate steps: %w", err)
		}

	case actionVersion:

	case actionForce:
		logger.Warn().Int("version", opts.forceVersion).Msg("forcing migration version")
		if err := migrator.Force(opts.forceVersion); err != nil {
			return fmt.Errorf("force version: %w", err)
		}

	default:
		return errors.New("no action specified")
	}

	printVersion(migrator, logger)
	return nil
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
