package migrations

import (
	"context"
	"fmt"
	"regexp"

	chstore "solana-trade-executor/internal/storage/clickhouse"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RunClickhouseMigrations creates the database named in dsn if needed,
// applies every embedded ClickHouse migration and returns a connection to
// that database. ClickHouse migrations must be idempotent; they run on
// every start.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	migs, err := Load(Clickhouse)
	if err != nil {
		return nil, err
	}

	db, err := chstore.Database(dsn)
	if err != nil {
		return nil, err
	}
	if !identifier.MatchString(db) {
		return nil, fmt.Errorf("clickhouse database name %q is not a plain identifier", db)
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse server: %w", err)
	}
	err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+db)
	_ = admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", db, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, db)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse database %s: %w", db, err)
	}
	for _, m := range migs {
		for _, stmt := range m.Statements {
			if err := conn.Exec(ctx, stmt); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
		}
	}
	return conn, nil
}
