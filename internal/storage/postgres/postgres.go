// Package postgres stores trade results and the approval audit trail in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-trade-executor/internal/observability"
	"solana-trade-executor/internal/storage"
)

const applicationName = "solana-trade-executor"

// Pool is the shared connection pool of every Postgres store.
type Pool struct {
	*pgxpool.Pool
	metrics *observability.Metrics
}

// Option tunes NewPool.
type Option func(*pgxpool.Config, *Pool)

// WithMetrics records query latency and errors.
func WithMetrics(m *observability.Metrics) Option {
	return func(_ *pgxpool.Config, p *Pool) { p.metrics = m }
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) Option {
	return func(cfg *pgxpool.Config, _ *Pool) {
		if n > 0 {
			cfg.MaxConns = n
		}
	}
}

// NewPool connects and pings. The DSN may be a URL or key/value string.
func NewPool(ctx context.Context, dsn string, opts ...Option) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	p := &Pool{}
	for _, opt := range opts {
		opt(cfg, p)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p.Pool = pool
	return p, nil
}

// Close releases every connection.
func (p *Pool) Close() {
	p.Pool.Close()
}

// observe records one query outcome. Not-found reads are not errors.
func (p *Pool) observe(op string, start time.Time, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	}
	p.metrics.RecordDBQuery("postgres", op, time.Since(start), err)
}

const pgErrUniqueViolation = "23505"

// mapError turns driver errors into storage sentinels, or returns nil when
// err has no storage meaning.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return storage.ErrDuplicateKey
	}
	return nil
}
