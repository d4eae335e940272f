// Package observability provides logging and metrics support for the item
// service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for HTTP requests, item operations and database sessions
//   - Context helpers for propagating the request correlation ID
//   - A zerolog adapter for pgx query tracing
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Int64("item_id", id).Msg("item created")
//
// Tag a component logger:
//
//	logger = observability.WithComponent(logger, "database")
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("items")
//
// Tests should use a private registry instead of the default one:
//
//	metrics := observability.NewMetricsWithRegistry("items", prometheus.NewRegistry())
//
// Record metrics:
//
//	metrics.RecordItemOperation("create", observability.OutcomeOK)
//	metrics.RecordSessionOpened("sqlite")
//	metrics.RecordSessionClosed("sqlite", observability.SessionCommit)
//
// # Context Helpers
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	reqID := observability.RequestIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: correlation identifier of the HTTP request
//   - component: emitting component (http, database, migrator, pgx)
//   - item_id: item identifier
//   - backend: storage backend (sqlite, postgres)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
