package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/item-service/internal/config"
	"github.com/helixir/item-service/internal/observability"
)

// OpenFunc constructs the engine for a database configuration.
type OpenFunc func(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (Engine, error)

// Factory hands out sessions on a lazily constructed engine.
//
// Nothing is opened by NewFactory. The first call to Engine (directly or via
// NewSession, WithSession or Health) selects the backend from the
// configuration and builds the engine exactly once; concurrent first callers
// wait for and share that engine. A failed initialization is not cached, so
// the next call tries again.
type Factory struct {
	cfg     *config.DatabaseConfig
	logger  zerolog.Logger
	metrics *observability.Metrics
	open    OpenFunc

	mu     sync.Mutex
	engine Engine
}

// NewFactory creates a factory for cfg. metrics may be nil.
func NewFactory(cfg *config.DatabaseConfig, logger zerolog.Logger, metrics *observability.Metrics) *Factory {
	return NewFactoryWithOpener(cfg, OpenEngine, logger, metrics)
}

// NewFactoryWithOpener creates a factory that builds its engine with open.
func NewFactoryWithOpener(cfg *config.DatabaseConfig, open OpenFunc, logger zerolog.Logger, metrics *observability.Metrics) *Factory {
	return &Factory{
		cfg:     cfg,
		logger:  observability.WithComponent(logger, "database"),
		metrics: metrics,
		open:    open,
	}
}

// NewFactoryWithEngine creates a factory around an already constructed engine.
func NewFactoryWithEngine(engine Engine, logger zerolog.Logger, metrics *observability.Metrics) *Factory {
	f := NewFactoryWithOpener(nil, nil, logger, metrics)
	f.engine = engine
	return f
}

// OpenEngine builds the engine for the backend selected by cfg.
func OpenEngine(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (Engine, error) {
	if cfg.Backend() == config.BackendSQLite {
		engine, err := NewSQLiteEngine(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}

	engine, err := NewPostgresEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// Backend returns the name of the configured backend.
func (f *Factory) Backend() string {
	if f.cfg != nil {
		return f.cfg.Backend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.engine != nil {
		return f.engine.Backend()
	}
	return ""
}

// Engine returns the engine, constructing it on first use.
func (f *Factory) Engine(ctx context.Context) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.engine != nil {
		return f.engine, nil
	}
	if f.open == nil || f.cfg == nil {
		return nil, fmt.Errorf("database factory has no engine configuration")
	}

	backend := f.cfg.Backend()
	engine, err := f.open(ctx, f.cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s engine: %w", backend, err)
	}

	f.engine = engine
	f.logger.Info().Str("backend", backend).Msg("database engine initialized")
	return engine, nil
}

// NewSession starts a new session. The caller owns it and must Close it.
func (f *Factory) NewSession(ctx context.Context) (Session, error) {
	engine, err := f.Engine(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := engine.NewSession(ctx)
	if err != nil {
		return nil, err
	}

	backend := engine.Backend()
	f.logger.Trace().Str("backend", backend).Msg("session opened")
	if f.metrics != nil {
		f.metrics.RecordSessionOpened(backend)
	}
	return &trackedSession{Session: sess, backend: backend, factory: f}, nil
}

// WithSession runs fn inside a new session. The session is committed when fn
// returns nil and rolled back when fn returns an error or panics; panics are
// re-raised after the rollback. The session is released on every path.
func (f *Factory) WithSession(ctx context.Context, fn func(sess Session) error) error {
	sess, err := f.NewSession(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			// Attempt rollback on panic
			if cerr := sess.Close(ctx); cerr != nil {
				f.logger.Error().
					Err(cerr).
					Interface("panic", p).
					Msg("failed to rollback session after panic")
			}
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(sess); err != nil {
		if cerr := sess.Close(ctx); cerr != nil {
			f.logger.Error().
				Err(cerr).
				AnErr("original_error", err).
				Msg("failed to rollback session")
			return fmt.Errorf("session error: %w (rollback error: %v)", err, cerr)
		}
		return err
	}

	if err := sess.Commit(ctx); err != nil {
		_ = sess.Close(ctx)
		return fmt.Errorf("failed to commit session: %w", err)
	}

	return sess.Close(ctx)
}

// Health returns the engine's health, or an unhealthy status when the engine
// cannot be constructed.
func (f *Factory) Health(ctx context.Context) HealthStatus {
	engine, err := f.Engine(ctx)
	if err != nil {
		return HealthStatus{
			Status:  StatusUnhealthy,
			Backend: f.Backend(),
			Error:   err.Error(),
		}
	}
	return engine.Health(ctx)
}

// Close closes the engine if one was constructed. A later call to Engine
// builds a new one.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.engine != nil {
		f.engine.Close()
		f.engine = nil
	}
}

// trackedSession reports session lifecycle to the factory's logger and
// metrics.
type trackedSession struct {
	Session
	backend   string
	factory   *Factory
	committed bool
	released  bool
}

func (s *trackedSession) Commit(ctx context.Context) error {
	if err := s.Session.Commit(ctx); err != nil {
		return err
	}
	s.committed = true
	return nil
}

func (s *trackedSession) Close(ctx context.Context) error {
	err := s.Session.Close(ctx)
	if s.released {
		return err
	}
	s.released = true

	outcome := observability.SessionRollback
	if s.committed {
		outcome = observability.SessionCommit
	}
	s.factory.logger.Trace().
		Str("backend", s.backend).
		Str("outcome", outcome).
		Msg("session released")
	if s.factory.metrics != nil {
		s.factory.metrics.RecordSessionClosed(s.backend, outcome)
	}
	return err
}
