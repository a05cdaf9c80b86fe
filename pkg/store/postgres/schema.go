package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL creates the sessions table. Record contents are opaque to the
// store; schema versioning of the record itself lives inside the JSON and is
// handled by the session package at load time.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         text        PRIMARY KEY,
    record     jsonb       NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS sessions_updated_at_idx ON sessions (updated_at DESC);
`

// Migrate ensures the sessions table and its indexes exist. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}
