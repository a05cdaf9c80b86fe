// Package transcript merges interim and final speech-recognition events from
// the two interview roles into the session's single ordered transcript.
//
// Events from the coach and the candidate arrive on independent channels, so
// provider timestamps are not comparable across roles. The synchronizer
// therefore orders entries by acceptance: each accepted event for a new turn
// receives the next session-scoped sequence number, assigned under the same
// per-session lock that serializes all other mutations.
package transcript

import (
	"context"
	"time"

	"github.com/prepdeck/prepdeck/internal/observe"
	"github.com/prepdeck/prepdeck/internal/session"
)

// Event is one speech-recognition event from the realtime transport.
type Event struct {
	// Role is the speaker: coach or candidate.
	Role session.Role

	// TurnID identifies the utterance. Interim events for the same turn id
	// refine the same transcript entry; the final event closes it.
	TurnID string

	// Text is the current rendering of the utterance.
	Text string

	// Final marks the authoritative text for the turn.
	Final bool

	// ProviderTS is the transport's own timestamp. Recorded for diagnostics
	// only; it plays no part in ordering.
	ProviderTS time.Time
}

// Disposition reports what the synchronizer did with an event.
type Disposition string

const (
	// DispositionAppended means a new transcript entry was created.
	DispositionAppended Disposition = "appended"

	// DispositionUpdated means an existing open entry's text was replaced.
	DispositionUpdated Disposition = "updated"

	// DispositionClosed means the event finalized its turn.
	DispositionClosed Disposition = "closed"

	// DispositionDiscarded means the event arrived for an already-closed
	// turn and was dropped. Counted, never an error to the caller.
	DispositionDiscarded Disposition = "discarded"
)

// Synchronizer ingests speech events for a session through the registry's
// mutation primitive. It holds no transcript state of its own.
type Synchronizer struct {
	reg     *session.Registry
	metrics *observe.Metrics
	now     func() time.Time
}

// NewSynchronizer creates a Synchronizer writing through reg.
func NewSynchronizer(reg *session.Registry, m *observe.Metrics) *Synchronizer {
	return &Synchronizer{reg: reg, metrics: m, now: time.Now}
}

// Ingest accepts one speech event and applies it to the session transcript.
// It returns the post-mutation snapshot and the event's disposition.
//
// Rules, in order:
//
//  1. An event for a turn id whose entry is already final is discarded and
//     counted as an ordering anomaly.
//  2. An event for an open turn replaces the entry's text in place (sequence
//     number unchanged); a final event additionally closes the turn.
//  3. An event for an unknown turn id appends a new entry with the next
//     sequence number — final events with no preceding interim create one
//     closed entry directly.
//
// Events are accepted even when the session status is completed: run
// boundaries come from run snapshots, not from a hard cutoff of the stream,
// and network tail latency routinely delivers events after complete_run.
func (sy *Synchronizer) Ingest(ctx context.Context, sessionID string, ev Event) (*session.Session, Disposition, error) {
	if !ev.Role.IsValid() {
		return nil, "", session.Validationf("role", "unknown role %q", ev.Role)
	}
	if ev.TurnID == "" {
		return nil, "", session.Validationf("turn_id", "must not be empty")
	}

	var disp Disposition
	snap, err := sy.reg.Mutate(ctx, sessionID, func(s *session.Session) error {
		disp = apply(s, ev, sy.now().UTC())
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	if sy.metrics != nil {
		sy.metrics.RecordTranscriptEvent(ctx, string(ev.Role), ev.Final)
		if disp == DispositionDiscarded {
			sy.metrics.RecordOrderingAnomaly(ctx, string(ev.Role))
		}
	}

	logger := observe.Logger(ctx)
	if disp == DispositionDiscarded {
		logger.Warn("late event for closed turn discarded",
			"session_id", sessionID,
			"turn_id", ev.TurnID,
			"role", ev.Role,
			"final", ev.Final,
		)
	} else {
		logger.Debug("transcript event accepted",
			"session_id", sessionID,
			"turn_id", ev.TurnID,
			"role", ev.Role,
			"final", ev.Final,
			"disposition", disp,
		)
	}

	return snap, disp, nil
}

// apply performs the merge against the locked session state.
func apply(s *session.Session, ev Event, now time.Time) Disposition {
	// Turns are short-lived, so the open entry — if any — is near the tail.
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		e := &s.Transcript[i]
		if e.TurnID != ev.TurnID {
			continue
		}
		if e.Final {
			s.AnomalyCount++
			return DispositionDiscarded
		}
		// The in-place rewrite is the transcript's one exception to
		// append-only entries: interim fragments are provisional renderings
		// of the same utterance.
		e.Text = ev.Text
		if ev.Final {
			e.Final = true
			return DispositionClosed
		}
		return DispositionUpdated
	}

	s.Transcript = append(s.Transcript, session.TranscriptEntry{
		TurnID:    ev.TurnID,
		Role:      ev.Role,
		Text:      ev.Text,
		Seq:       s.NextSeq,
		Final:     ev.Final,
		CreatedAt: now,
	})
	s.NextSeq++

	if ev.Final {
		return DispositionClosed
	}
	return DispositionAppended
}
