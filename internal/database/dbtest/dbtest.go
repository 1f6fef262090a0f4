// Package dbtest starts a throwaway Postgres for integration tests
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/pkg/logger"
)

// New starts a migrated Postgres container and returns a connected Database.
// The test is skipped when no container runtime is available.
func New(t *testing.T) *database.Database {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gallery_test"),
		postgres.WithUsername("gallery"),
		postgres.WithPassword("gallery"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	conn.SetMaxOpenConns(20)

	db := database.Wrap(conn, logger.NewNop())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.RunMigrations())

	return db
}
