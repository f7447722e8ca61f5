// Package testutil holds helpers for tests that need a real Postgres.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"auction-backend/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
)

const testDBLockID int64 = 734512002

// NewTestPool connects to TEST_DATABASE_URL and skips the test when it is
// unset or unreachable. The pool holds an advisory lock for the test's
// lifetime so packages sharing the database do not interleave.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping Postgres tests: TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres tests: %v", err)
	}

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		pool.Close()
		t.Fatalf("failed to acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		pool.Close()
		t.Fatalf("failed to lock test database: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
		pool.Close()
	})
	return pool
}

func ApplyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
}

func TruncateAll(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE bids, listings, users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}
