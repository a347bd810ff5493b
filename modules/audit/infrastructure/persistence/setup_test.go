package persistence

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/backoffice/migrations"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/configuration"
)

func isCI() bool {
	return strings.TrimSpace(os.Getenv("CI")) != "" || strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true")
}

// newTestDB creates a scratch database, migrates it and returns a context carrying its pool.
// Outside CI the test is skipped when Postgres is unreachable.
func newTestDB(tb testing.TB) context.Context {
	tb.Helper()
	ctx := context.Background()
	opts := configuration.Use().Database

	adminDSN := "postgres://" + opts.User + ":" + opts.Password + "@" + opts.Host + ":" + opts.Port + "/postgres?sslmode=disable"
	adminConn, err := pgx.Connect(ctx, adminDSN)
	if err != nil {
		if isCI() {
			require.NoError(tb, err)
		}
		tb.Skip("postgres is not reachable; skipping integration test")
	}
	tb.Cleanup(func() { _ = adminConn.Close(ctx) })

	dbName := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, "audit_"+strings.ToLower(tb.Name()))

	_, _ = adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+dbName)
	if _, err := adminConn.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		if isCI() {
			require.NoError(tb, err)
		}
		tb.Skip("failed to create test database; skipping integration test")
	}

	opts.Name = dbName
	pool, err := pgxpool.New(ctx, opts.URL())
	require.NoError(tb, err)
	tb.Cleanup(func() {
		pool.Close()
		_, _ = adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+dbName)
	})

	db := stdlib.OpenDBFromPool(pool)
	tb.Cleanup(func() { _ = db.Close() })
	provider, err := migrations.NewProvider(db)
	require.NoError(tb, err)
	_, err = provider.Up(ctx)
	require.NoError(tb, err)

	return composables.WithPool(ctx, pool)
}
