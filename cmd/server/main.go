// Package main provides the entry point for the item service HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/item-service/internal/config"
	"github.com/helixir/item-service/internal/database"
	"github.com/helixir/item-service/internal/observability"
	"github.com/helixir/item-service/internal/repository"
	httpserver "github.com/helixir/item-service/internal/server/http"
)

// metricsNamespace prefixes every metric the service exports.
const metricsNamespace = "item_service"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return serve(ctx, cfg, logger, reg, nil)
}

// serve runs the service until ctx is cancelled or a server fails. When
// ready is non-nil it is called with the bound HTTP address once the
// service accepts requests.
func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry, ready func(addr net.Addr)) error {
	logger = observability.WithComponent(logger, "server")
	logger.Info().
		Str("app", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("backend", cfg.Database.Backend()).
		Msg("item-service starting")

	metrics := observability.NewMetricsWithRegistry(metricsNamespace, reg)
	metrics.SetBuildInfo(cfg.App.Name, cfg.App.Version)

	// Startup phase: build the engine now so a bad configuration or an
	// unreachable database stops the process before it takes traffic.
	factory := database.NewFactory(&cfg.Database, logger, metrics)
	defer factory.Close()

	engine, err := factory.Engine(ctx)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	// A fresh SQLite file has no schema, so migrations always run for it.
	if cfg.Database.MigrationAutoRun || engine.Backend() == config.BackendSQLite {
		if err := migrate(engine, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	repo := repository.NewSQLItemRepository(cfg.API.MaxLimit)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DefaultLimit:    cfg.API.DefaultLimit,
		MaxLimit:        cfg.API.MaxLimit,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
	}
	httpSrv := httpserver.NewServer(httpCfg, factory, repo, metrics, logger)

	httpListener, err := net.Listen("tcp", httpCfg.Address)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	var metricsListener net.Listener
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		metricsListener, err = net.Listen("tcp", metricsServer.Addr)
		if err != nil {
			_ = httpListener.Close()
			return fmt.Errorf("listen on metrics address: %w", err)
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		if err := httpSrv.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsListener.Addr().String()).
				Msg("metrics server starting")
			if err := metricsServer.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpListener.Addr().String())
	if metricsListener != nil {
		readyLog = readyLog.Str("metrics_address", metricsListener.Addr().String())
	}
	readyLog.Msg("item-service is ready")
	if ready != nil {
		ready(httpListener.Addr())
	}

	// Wait for shutdown signal or server error.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server error")
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down item-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shut down HTTP REST API server with timeout. In-flight requests finish
	// and release their sessions before the factory is closed.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Shut down metrics server if running.
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("item-service shutdown complete")
	return runErr
}

// migrate applies pending schema migrations on engine.
func migrate(engine database.Engine, migrationPath string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(engine, migrationPath, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
