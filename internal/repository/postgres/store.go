// Package postgres is the durable AuctionDB backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-backend/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ repository.AuctionDB = (*Store)(nil)

// Store implements repository.AuctionDB. The listing commit scope is a
// transaction holding the listing row lock.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and checks the database is reachable.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// WithListingLock runs fn in a transaction that holds the listing row with
// SELECT ... FOR UPDATE. Store calls made with the ctx given to fn join the
// transaction, so a failing fn rolls back every write it made.
func (s *Store) WithListingLock(ctx context.Context, listingID string, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, func(txCtx context.Context) error {
		var locked string
		err := s.queryRow(txCtx, `SELECT id FROM listings WHERE id = $1 FOR UPDATE`, listingID).Scan(&locked)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock listing %s: %w", listingID, err)
		}
		// a missing listing has nothing to protect; fn reports it
		return fn(txCtx)
	})
}
