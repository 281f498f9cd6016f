package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOption adjusts the pool configuration before it is opened.
type PoolOption func(*pgxpool.Config)

// ReadOnly makes every session default to read-only transactions. The
// dataset source uses it; the importer needs a writable pool.
func ReadOnly() PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}
}

// ApplicationName tags sessions in pg_stat_activity.
func ApplicationName(name string) PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.RuntimeParams["application_name"] = name
	}
}

func poolConfig(databaseURL string, maxConns, minConns int32, opts ...PoolOption) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// NewPool opens and pings a pool on databaseURL.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32, opts ...PoolOption) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(databaseURL, maxConns, minConns, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
