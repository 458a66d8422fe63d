// Package database provides PostgreSQL connection pool construction.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool configuration. The service is read-heavy with short queries, so a
// small pool with aggressive recycling is sufficient.
const (
	maxConns          = 10
	minConns          = 2
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 1 * time.Minute
	pingTimeout       = 5 * time.Second
)

// NewPool creates a pgx connection pool from a DSN and verifies connectivity
// with a bounded ping. The returned cleanup closes the pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	poolCfg.MaxConnLifetime = maxConnLifetime
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// CheckVectorExtension verifies the pgvector extension is installed.
// Similarity search fails with opaque SQL errors without it, so startup
// surfaces the problem explicitly.
func CheckVectorExtension(ctx context.Context, pool *pgxpool.Pool) error {
	var installed bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`,
	).Scan(&installed)
	if err != nil {
		return fmt.Errorf("checking vector extension: %w", err)
	}
	if !installed {
		return fmt.Errorf("pgvector extension is not installed; run migrations first")
	}
	return nil
}
