package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck/internal/observe"
	"github.com/prepdeck/prepdeck/pkg/store"
)

// defaultTTL is how long an idle session stays resident before the eviction
// loop drops its in-memory handle. The persisted record is untouched; the
// session reloads on next access.
const defaultTTL = 30 * time.Minute

// evictInterval is how often the eviction loop scans for idle handles.
const evictInterval = 5 * time.Minute

// handle pairs a resident session with its mutation lock. All reads and
// writes of sess go through mu; the registry map lock is never held while a
// session operation runs, so independent sessions proceed in parallel.
//
// evicted marks a handle that has been unpublished from the registry map.
// It is set with mu held, so a goroutine that looked the handle up before
// eviction discovers the eviction once it gets the lock and re-resolves the
// id instead of mutating a stale copy.
type handle struct {
	mu         sync.Mutex
	sess       *Session
	lastAccess time.Time
	evicted    bool
}

// Registry is the session state machine's front door: it owns the resident
// session table keyed by id, loads records from the store on first access
// (applying migration), serializes all mutations per session, and persists
// the post-mutation state before releasing the lock.
//
// All exported methods are safe for concurrent use.
type Registry struct {
	store   store.Store
	ttl     time.Duration
	metrics *observe.Metrics

	// now is the clock; replaced in tests.
	now func() time.Time

	mu      sync.Mutex
	handles map[string]*handle

	// broken remembers ids whose record failed migration, so repeated
	// access reports the same MigrationError instead of re-parsing.
	broken map[string]*MigrationError
}

// RegistryOption configures a [Registry] during construction.
type RegistryOption func(*Registry)

// WithTTL sets the idle eviction TTL. The default is 30 minutes.
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = ttl }
}

// WithClock replaces the registry's clock. Used in tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithMetrics enables the resident-session gauge. Nil metrics (the default)
// disables recording.
func WithMetrics(m *observe.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// residentDelta moves the resident-session gauge when a handle is created or
// dropped.
func (r *Registry) residentDelta(ctx context.Context, d int64) {
	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(ctx, d)
	}
}

// NewRegistry creates a Registry backed by st.
func NewRegistry(st store.Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:   st,
		ttl:     defaultTTL,
		now:     time.Now,
		handles: make(map[string]*handle),
		broken:  make(map[string]*MigrationError),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create makes a new session with default settings and a fresh run id,
// persists it, and returns a snapshot.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	runID := uuid.NewString()
	sess := New(id, runID, r.now().UTC())

	h := &handle{sess: sess, lastAccess: r.now()}
	h.mu.Lock()
	defer h.mu.Unlock()

	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
	r.residentDelta(ctx, 1)

	if err := r.persist(ctx, sess); err != nil {
		return nil, err
	}

	slog.Info("session created", "session_id", id, "run_id", runID)
	return sess.Clone(), nil
}

// Mutate applies op to the session with the given id under the per-session
// lock, persists the result, and returns a post-mutation snapshot.
//
// If op returns an error the session is left exactly as op left it but is
// NOT persisted; ops must therefore either mutate fully or return before
// mutating. Two mutations for the same session never interleave; mutations
// for different sessions proceed independently.
func (r *Registry) Mutate(ctx context.Context, id string, op func(*Session) error) (*Session, error) {
	h, err := r.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	if err := op(h.sess); err != nil {
		return nil, err
	}

	if err := r.persist(ctx, h.sess); err != nil {
		return nil, err
	}
	return h.sess.Clone(), nil
}

// Snapshot returns a read-only deep copy of the session, safe to serialize
// for transmission. It never returns a live-mutable reference.
func (r *Registry) Snapshot(ctx context.Context, id string) (*Session, error) {
	h, err := r.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	return h.sess.Clone(), nil
}

// Close evicts the session's resident handle. The stored record remains and
// is already current, since every mutation persists before releasing the
// lock; a later access reloads it.
//
// Close waits for any in-flight mutation on the handle before unpublishing
// it, so no writer is left holding a stale handle.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.evicted {
		// A concurrent Close or eviction sweep got here first.
		return nil
	}

	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
	h.evicted = true
	r.residentDelta(ctx, -1)

	return nil
}

// Run starts the idle-eviction loop and blocks until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// acquire returns the handle for id with its mutation lock held, loading the
// session from the store on first access. The caller must unlock h.mu.
func (r *Registry) acquire(ctx context.Context, id string) (*handle, error) {
	for {
		r.mu.Lock()
		if me, bad := r.broken[id]; bad {
			r.mu.Unlock()
			return nil, me
		}
		h, ok := r.handles[id]
		if !ok {
			// Insert a placeholder handle and lock it before publishing, so
			// concurrent first accesses for the same id queue behind the load.
			h = &handle{}
			h.mu.Lock()
			r.handles[id] = h
			r.mu.Unlock()

			sess, err := r.load(ctx, id)
			if err != nil {
				r.mu.Lock()
				delete(r.handles, id)
				var me *MigrationError
				if errors.As(err, &me) {
					r.broken[id] = me
				}
				r.mu.Unlock()
				h.evicted = true
				h.mu.Unlock()
				return nil, err
			}
			h.sess = sess
			h.lastAccess = r.now()
			r.residentDelta(ctx, 1)
			return h, nil
		}
		r.mu.Unlock()

		h.mu.Lock()
		if h.evicted {
			// The handle was closed or evicted between the map lookup and
			// the lock; re-resolve the id so the mutation lands on live
			// state, not a stale copy.
			h.mu.Unlock()
			continue
		}
		h.lastAccess = r.now()
		return h, nil
	}
}

// load reads and migrates the persisted record for id.
func (r *Registry) load(ctx context.Context, id string) (*Session, error) {
	raw, err := r.store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %q: %w", id, err)
	}

	sess, err := Load(raw)
	if err != nil {
		var me *MigrationError
		if errors.As(err, &me) {
			me.SessionID = id
			slog.Error("session record excluded from use", "session_id", id, "err", me)
			return nil, me
		}
		return nil, err
	}
	return sess, nil
}

// persist serializes sess and writes it to the store. Called with the
// session's mutation lock held, which is the registry's whole serialization
// discipline: the store itself needs no transactions.
func (r *Registry) persist(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal %q: %w", sess.ID, err)
	}
	if err := r.store.Save(ctx, sess.ID, raw); err != nil {
		return fmt.Errorf("session: save %q: %w", sess.ID, err)
	}
	return nil
}

// evictIdle drops handles whose last access is older than the TTL. Handles
// currently locked by an operation are skipped and reconsidered next sweep.
func (r *Registry) evictIdle() {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, h := range r.handles {
		if !h.mu.TryLock() {
			continue
		}
		idle := h.lastAccess.Before(cutoff)
		if idle {
			h.evicted = true
		}
		h.mu.Unlock()

		if idle {
			delete(r.handles, id)
			r.residentDelta(context.Background(), -1)
			slog.Debug("evicted idle session handle", "session_id", id)
		}
	}
}
