// Package postgres implements the session record store on PostgreSQL.
//
// Records are stored as JSONB in a single sessions table. The registry's
// per-session lock serializes writes for one id, so a plain upsert is
// sufficient; no row locking or optimistic versioning is needed here.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepdeck/prepdeck/pkg/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed session record store.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the database at dsn,
// and runs [Migrate] to ensure the sessions table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Load implements [store.Store.Load].
func (s *Store) Load(ctx context.Context, id string) ([]byte, error) {
	const q = `SELECT record FROM sessions WHERE id = $1`

	var record []byte
	err := s.pool.QueryRow(ctx, q, id).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load %q: %w", id, err)
	}
	return record, nil
}

// Save implements [store.Store.Save]. It upserts the record.
func (s *Store) Save(ctx context.Context, id string, record []byte) error {
	const q = `
		INSERT INTO sessions (id, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET record = EXCLUDED.record, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, id, record); err != nil {
		return fmt.Errorf("postgres store: save %q: %w", id, err)
	}
	return nil
}

// Delete implements [store.Store.Delete].
func (s *Store) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM sessions WHERE id = $1`

	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("postgres store: delete %q: %w", id, err)
	}
	return nil
}

// List implements [store.Store.List].
func (s *Store) List(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM sessions ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan ids: %w", err)
	}
	return ids, nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
