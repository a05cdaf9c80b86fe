package session

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no session exists for the requested id.
var ErrNotFound = errors.New("session not found")

// ValidationError rejects a malformed request before any mutation happens:
// unknown settings combinations, unknown question ids, empty extension sets.
// The caller can correct the input and retry.
type ValidationError struct {
	// Field names the offending input, dotted-path style (e.g.
	// "settings.effort", "extra_questions").
	Field string

	// Reason is a human-readable explanation suitable for an API response.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validationf builds a [ValidationError] with a formatted reason.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a [ValidationError].
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConcurrencyConflict rejects a state transition whose precondition no longer
// holds by the time the per-session lock is acquired — e.g. a duplicate
// practice-again that observed status "completed" from a stale read. The
// caller may retry after re-reading the session.
type ConcurrencyConflict struct {
	SessionID string

	// Op names the rejected transition.
	Op string

	// Status is the status actually observed under the lock.
	Status Status
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("conflict: %s on session %s: status is %q", e.Op, e.SessionID, e.Status)
}

// IsConflict reports whether err is (or wraps) a [ConcurrencyConflict].
func IsConflict(err error) bool {
	var cc *ConcurrencyConflict
	return errors.As(err, &cc)
}

// MigrationError marks a persisted record as structurally unrecoverable.
// The session is excluded from active use; the underlying record is left on
// disk for manual recovery.
type MigrationError struct {
	SessionID string
	Reason    string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("migration: session %s: %s: %v", e.SessionID, e.Reason, e.Err)
	}
	return fmt.Sprintf("migration: session %s: %s", e.SessionID, e.Reason)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// IsMigration reports whether err is (or wraps) a [MigrationError].
func IsMigration(err error) bool {
	var me *MigrationError
	return errors.As(err, &me)
}
