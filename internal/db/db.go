// Package db provides PostgreSQL storage for the audit trail of workflow runs.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id              UUID PRIMARY KEY,
	username        TEXT NOT NULL,
	title           TEXT NOT NULL,
	skills          TEXT[] NOT NULL DEFAULT '{}',
	state           TEXT NOT NULL,
	found_count     INTEGER NOT NULL DEFAULT 0,
	saved_count     INTEGER NOT NULL DEFAULT 0,
	top_level_error TEXT NOT NULL DEFAULT '',
	error_kind      TEXT NOT NULL DEFAULT '',
	error_detail    TEXT NOT NULL DEFAULT '',
	history         JSONB,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS workflow_runs_started_at_idx ON workflow_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS save_outcomes (
	run_id        UUID NOT NULL REFERENCES workflow_runs (id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	candidate_ref TEXT NOT NULL,
	name          TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_detail  TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);
`

// EnsureSchema creates the audit tables when they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
