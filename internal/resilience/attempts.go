// Package resilience implements the bounded retry-then-fallback discipline
// used for every reasoning-backend call kind.
//
// The control flow is an explicit state machine — attempt 1 → attempt 2 →
// fallback — rather than nested conditionals, and returns a tagged
// [Outcome] so callers can label results uniformly for observability.
package resilience

import (
	"context"
	"log/slog"
	"time"
)

// MaxAttempts is the total backend attempt budget per call. The first
// failure triggers exactly one retry with no added delay; a second failure
// engages the fallback.
const MaxAttempts = 2

// Outcome tags how a result was produced.
type Outcome struct {
	// Attempt is the 1-based attempt that succeeded. Zero when the fallback
	// produced the result.
	Attempt int

	// Fallback reports that the deterministic fallback produced the result.
	Fallback bool
}

// Label returns the observability label for this outcome: "attempt-1-of-2",
// "attempt-2-of-2", or "fallback".
func (o Outcome) Label() string {
	if o.Fallback {
		return "fallback"
	}
	switch o.Attempt {
	case 1:
		return "attempt-1-of-2"
	case 2:
		return "attempt-2-of-2"
	}
	return "unknown"
}

// Do runs fn up to [MaxAttempts] times and falls back to fallback if every
// attempt fails. Each attempt gets its own context deadline of timeout
// (when timeout > 0); an attempt exceeding it counts as a failure. The
// fallback must be deterministic and must not fail — Do never returns an
// error, only a value and its [Outcome].
//
// Cancellation of ctx itself is respected between attempts: once the parent
// context is done, remaining attempts are skipped and the fallback result is
// returned immediately.
func Do[T any](ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (T, error), fallback func() T) (T, Outcome) {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		v, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return v, Outcome{Attempt: attempt}
		}

		slog.Warn("backend attempt failed",
			"call", name,
			"attempt", attempt,
			"of", MaxAttempts,
			"err", err,
		)
	}

	slog.Info("backend unavailable, using fallback", "call", name)
	return fallback(), Outcome{Fallback: true}
}
