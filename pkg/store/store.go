// Package store defines the persistence interface for session records.
//
// A record is an opaque byte slice; serialization and schema migration are
// owned by the session package. Implementations provide durability only — the
// session registry supplies its own serialization discipline via the
// per-session lock, so Store implementations need no transactional
// guarantees beyond atomicity of a single Save.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no record exists for the given id.
var ErrNotFound = errors.New("store: record not found")

// Store persists raw session records keyed by session id.
//
// Implementations must be safe for concurrent use across different ids.
// Concurrent calls for the same id never happen: the session registry
// serializes them.
type Store interface {
	// Load returns the record stored under id, or [ErrNotFound].
	Load(ctx context.Context, id string) ([]byte, error)

	// Save writes record under id, replacing any previous version.
	Save(ctx context.Context, id string, record []byte) error

	// Delete removes the record under id. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns all stored session ids in unspecified order.
	List(ctx context.Context) ([]string, error)
}
