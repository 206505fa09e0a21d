package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-trade-executor/internal/storage/postgres"
)

const pgVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunPostgresMigrations applies every embedded Postgres migration not yet
// recorded in schema_migrations. Each migration runs in its own transaction.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	migs, err := Load(Postgres)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgVersionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	for _, m := range migs {
		if applied[m.Version] {
			continue
		}
		if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		}); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, pool *postgres.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan schema_migrations: %w", err)
	}

	out := make(map[string]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}
