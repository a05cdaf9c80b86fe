// Package run manages the practice-run lifecycle: completing the active run
// and reopening a completed session for another pass, either over the same
// question set or an extended one.
//
// Run transitions are precondition-checked under the per-session lock, so a
// duplicate transition racing a completed one fails with a
// [session.ConcurrencyConflict] rather than corrupting the run history.
package run

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck/internal/observe"
	"github.com/prepdeck/prepdeck/internal/session"
)

// Mode selects how practice-again builds the next run's question set.
type Mode string

const (
	// ModeReuse repeats the same question set.
	ModeReuse Mode = "reuse"

	// ModeExtend appends caller-supplied questions to the set.
	ModeExtend Mode = "extend"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeReuse || m == ModeExtend
}

// nearDuplicateThreshold is the Jaro-Winkler similarity above which an added
// question counts as a rephrasing of an existing one.
const nearDuplicateThreshold = 0.92

// Manager drives run transitions through the session registry.
type Manager struct {
	reg     *session.Registry
	metrics *observe.Metrics
	now     func() time.Time
}

// NewManager creates a Manager bound to the registry.
func NewManager(reg *session.Registry, metrics *observe.Metrics) *Manager {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Manager{reg: reg, metrics: metrics, now: time.Now}
}

// Complete finishes the active run. Every question must carry an answer,
// typed or spoken: candidate voice turns in the active run stand in for
// questions that have no typed answer or evaluation. The run is then frozen
// into the history with the settings snapshot and transcript range it
// covered, and the session moves to completed.
func (m *Manager) Complete(ctx context.Context, sessionID string) (session.PracticeRun, error) {
	var frozen session.PracticeRun
	_, err := m.reg.Mutate(ctx, sessionID, func(s *session.Session) error {
		if s.Status != session.StatusActive {
			return &session.ConcurrencyConflict{SessionID: sessionID, Op: "complete_run", Status: s.Status}
		}

		unanswered := 0
		for _, q := range s.Questions {
			if !s.Answered(q.ID) {
				unanswered++
			}
		}
		if unanswered > s.CandidateVoiceTurns() {
			return session.Validationf("questions", "%d question(s) have neither a typed nor a voice answer", unanswered)
		}

		ids := make([]string, len(s.Questions))
		for i, q := range s.Questions {
			ids[i] = q.ID
		}
		frozen = session.PracticeRun{
			RunID:              s.ActiveRunID,
			CompletedAt:        m.now().UTC(),
			QuestionIDs:        ids,
			SettingsSnapshotID: s.Settings.SnapshotID,
			TranscriptRange:    session.SeqRange{Start: s.RunStartSeq, End: s.NextSeq - 1},
		}
		s.RunHistory = append(s.RunHistory, frozen)
		s.Status = session.StatusCompleted
		return nil
	})
	m.metrics.RecordRunTransition(ctx, "complete", statusLabel(err))
	if err != nil {
		return session.PracticeRun{}, err
	}

	observe.Logger(ctx).Info("run completed",
		"session_id", sessionID,
		"run_id", frozen.RunID,
		"questions", len(frozen.QuestionIDs),
		"settings_snapshot_id", frozen.SettingsSnapshotID)
	return frozen, nil
}

// PracticeAgain reopens a completed session for a new run. In reuse mode the
// question set is unchanged; in extend mode the supplied questions are
// appended after duplicate filtering. Answers and evaluations reset for the
// new run while the previous run's record and transcript slice stay frozen
// in history.
func (m *Manager) PracticeAgain(ctx context.Context, sessionID string, mode Mode, extra []string) (runID string, err error) {
	if !mode.IsValid() {
		m.metrics.RecordRunTransition(ctx, "practice_again", "invalid")
		return "", session.Validationf("mode", "unknown mode %q", mode)
	}

	_, err = m.reg.Mutate(ctx, sessionID, func(s *session.Session) error {
		if s.Status != session.StatusCompleted {
			return &session.ConcurrencyConflict{SessionID: sessionID, Op: "practice_again", Status: s.Status}
		}

		if mode == ModeExtend {
			added, err := extendQuestions(s, extra)
			if err != nil {
				return err
			}
			s.Questions = append(s.Questions, added...)
		}

		runID = uuid.NewString()
		s.ActiveRunID = runID
		s.Status = session.StatusActive
		s.Answers = make(map[string]string)
		s.Evaluations = make(map[string]session.Evaluation)
		s.RunStartSeq = s.NextSeq
		return nil
	})
	m.metrics.RecordRunTransition(ctx, "practice_again", statusLabel(err))
	if err != nil {
		return "", err
	}

	observe.Logger(ctx).Info("practice again",
		"session_id", sessionID,
		"run_id", runID,
		"mode", mode)
	return runID, nil
}

// History returns the frozen run records, oldest first.
func (m *Manager) History(ctx context.Context, sessionID string) ([]session.PracticeRun, error) {
	snap, err := m.reg.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.RunHistory, nil
}

// extendQuestions validates and dedups the caller-supplied extension set and
// returns the questions to append. Exact and near-duplicate rephrasings of
// existing questions are dropped; an extension that leaves nothing to add is
// rejected.
func extendQuestions(s *session.Session, extra []string) ([]session.Question, error) {
	if len(extra) == 0 {
		return nil, session.Validationf("extra_questions", "extend mode requires at least one question")
	}

	existing := make([]string, 0, len(s.Questions))
	for _, q := range s.Questions {
		existing = append(existing, normalize(q.Text))
	}

	var added []session.Question
	for i, text := range extra {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, session.Validationf("extra_questions", "question at index %d is blank", i)
		}
		norm := normalize(text)
		if isDuplicate(norm, existing) {
			slog.Debug("dropping duplicate extension question", "session_id", s.ID, "text", text)
			continue
		}
		existing = append(existing, norm)
		added = append(added, session.Question{
			ID:     uuid.NewString(),
			Text:   text,
			Source: session.SourceAdded,
		})
	}
	if len(added) == 0 {
		return nil, session.Validationf("extra_questions", "all supplied questions duplicate existing ones")
	}
	return added, nil
}

// isDuplicate reports whether norm matches any known question text exactly or
// within the Jaro-Winkler near-duplicate threshold.
func isDuplicate(norm string, known []string) bool {
	for _, k := range known {
		if norm == k {
			return true
		}
		if matchr.JaroWinkler(norm, k, true) >= nearDuplicateThreshold {
			return true
		}
	}
	return false
}

// normalize lowercases and collapses whitespace for comparison.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// statusLabel maps a transition outcome to a metric label.
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case session.IsConflict(err):
		return "conflict"
	default:
		return "invalid"
	}
}
