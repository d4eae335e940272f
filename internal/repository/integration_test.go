//go:build integration

package repository

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/item-service/internal/config"
	"github.com/helixir/item-service/internal/database"
	"github.com/helixir/item-service/internal/domain"
)

// pgFactory is shared by every test in this file. It is nil when no
// PostgreSQL container could be started.
var pgFactory *database.Factory

func TestMain(m *testing.M) {
	os.Exit(runWithPostgres(m))
}

func runWithPostgres(m *testing.M) int {
	ctx := context.Background()
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("items_test"),
		postgres.WithUsername("items"),
		postgres.WithPassword("items"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("postgres container unavailable, skipping database integration tests")
		return m.Run()
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			logger.Error().Err(err).Msg("failed to terminate postgres container")
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve container host")
		return 1
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve container port")
		return 1
	}

	cfg := &config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "items",
		Password:        "items",
		Name:            "items_test",
		SSLMode:         config.SSLModeDisable,
		MaxConns:        5,
		ConnectTimeout:  10 * time.Second,
		MaxConnLifetime: time.Hour,
	}

	pgFactory = database.NewFactory(cfg, zerolog.Nop(), nil)
	defer pgFactory.Close()

	engine, err := pgFactory.Engine(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to postgres container")
		return 1
	}

	migrator, err := database.NewMigrator(engine, "", zerolog.Nop())
	if err != nil {
		logger.Error().Err(err).Msg("failed to create migrator")
		return 1
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil {
		logger.Error().Err(err).Msg("failed to run migrations")
		return 1
	}

	return m.Run()
}

func requirePostgres(t *testing.T) *database.Factory {
	t.Helper()
	if pgFactory == nil {
		t.Skip("postgres container not available")
	}
	cleanItems(t)
	return pgFactory
}

func cleanItems(t *testing.T) {
	t.Helper()
	require.NoError(t, pgFactory.WithSession(context.Background(), func(sess database.Session) error {
		_, err := sess.Exec(context.Background(), `TRUNCATE items RESTART IDENTITY`)
		return err
	}))
}

func TestPostgresItemRepository_RoundTrip(t *testing.T) {
	f := requirePostgres(t)
	ctx := context.Background()
	repo := NewSQLItemRepository(0)

	var created domain.Item
	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		var err error
		created, err = repo.Create(ctx, sess, domain.ItemInput{Name: "Test Item", Description: domain.StringPtr("Test Description")})
		return err
	}))
	assert.Equal(t, int64(1), created.ID)

	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		got, found, err := repo.Get(ctx, sess, created.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, created, got)
		return nil
	}))
}

func TestPostgresItemRepository_LongName(t *testing.T) {
	f := requirePostgres(t)
	ctx := context.Background()
	repo := NewSQLItemRepository(0)
	name := strings.Repeat("n", 300)

	var created domain.Item
	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		var err error
		created, err = repo.Create(ctx, sess, domain.ItemInput{Name: name})
		return err
	}))

	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		got, found, err := repo.Get(ctx, sess, created.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, name, got.Name)
		return nil
	}))
}

func TestPostgresItemRepository_NullDescription(t *testing.T) {
	f := requirePostgres(t)
	ctx := context.Background()
	repo := NewSQLItemRepository(0)

	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		item, err := repo.Create(ctx, sess, domain.ItemInput{Name: "no description"})
		require.NoError(t, err)
		assert.Nil(t, item.Description)

		updated, found, err := repo.Update(ctx, sess, item.ID, domain.ItemInput{Name: "now described", Description: domain.StringPtr("text")})
		require.NoError(t, err)
		require.True(t, found)
		require.NotNil(t, updated.Description)

		cleared, _, err := repo.Update(ctx, sess, item.ID, domain.ItemInput{Name: "now described"})
		require.NoError(t, err)
		assert.Nil(t, cleared.Description)
		return nil
	}))
}

func TestPostgresItemRepository_Pagination(t *testing.T) {
	f := requirePostgres(t)
	ctx := context.Background()
	repo := NewSQLItemRepository(0)

	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		for _, name := range []string{"a", "b", "c", "d", "e"} {
			if _, err := repo.Create(ctx, sess, domain.ItemInput{Name: name}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		page, err := repo.List(ctx, sess, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "c", page[0].Name)
		assert.Equal(t, "d", page[1].Name)

		tail, err := repo.List(ctx, sess, 4, 10)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, "e", tail[0].Name)
		return nil
	}))
}

func TestPostgresItemRepository_DeleteSnapshot(t *testing.T) {
	f := requirePostgres(t)
	ctx := context.Background()
	repo := NewSQLItemRepository(0)

	var created domain.Item
	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		var err error
		created, err = repo.Create(ctx, sess, domain.ItemInput{Name: "doomed", Description: domain.StringPtr("bye")})
		return err
	}))

	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		deleted, found, err := repo.Delete(ctx, sess, created.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, created, deleted)
		return nil
	}))

	require.NoError(t, f.WithSession(ctx, func(sess database.Session) error {
		_, found, err := repo.Get(ctx, sess, created.ID)
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	}))
}

func TestPostgresItemRepository_SessionIsolation(t *testing.T) {
	f := requirePostgres(t)
	ctx := context.Background()
	repo := NewSQLItemRepository(0)

	writer, err := f.NewSession(ctx)
	require.NoError(t, err)
	defer writer.Close(ctx)

	created, err := repo.Create(ctx, writer, domain.ItemInput{Name: "pending"})
	require.NoError(t, err)

	require.NoError(t, f.WithSession(ctx, func(reader database.Session) error {
		_, found, err := repo.Get(ctx, reader, created.ID)
		require.NoError(t, err)
		assert.False(t, found, "uncommitted row must not be visible to another session")
		return nil
	}))

	require.NoError(t, writer.Commit(ctx))

	require.NoError(t, f.WithSession(ctx, func(reader database.Session) error {
		_, found, err := repo.Get(ctx, reader, created.ID)
		require.NoError(t, err)
		assert.True(t, found)
		return nil
	}))
}
