// Package agent orchestrates reasoning-backend calls for a session: question
// generation, example answers, and answer evaluation.
//
// Every call is bound to the settings snapshot current at dispatch time and
// runs under the two-attempts-then-fallback discipline of the resilience
// package, so callers always get a result. The session lock is never held
// across a backend round trip: the orchestrator snapshots what it needs,
// calls out, and re-enters the lock only to append the result.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck/internal/observe"
	"github.com/prepdeck/prepdeck/internal/resilience"
	"github.com/prepdeck/prepdeck/internal/session"
	"github.com/prepdeck/prepdeck/pkg/provider/llm"
)

// defaultAttemptTimeout bounds each backend attempt.
const defaultAttemptTimeout = 30 * time.Second

// Orchestrator coordinates backend calls and session mutations.
type Orchestrator struct {
	reg      *session.Registry
	backend  llm.Backend
	fallback Fallback
	metrics  *observe.Metrics
	timeout  time.Duration
}

// Option is a functional option for the Orchestrator.
type Option func(*Orchestrator)

// WithAttemptTimeout sets the per-attempt backend deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithMetrics replaces the metrics sink. Used in tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an Orchestrator over the registry and backend.
func NewOrchestrator(reg *session.Registry, backend llm.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:     reg,
		backend: backend,
		timeout: defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// GenerateQuestions asks the backend for n questions about topic and appends
// them to the session. Already-present question texts are passed to the
// backend as an avoid list. Returns the questions appended.
func (o *Orchestrator) GenerateQuestions(ctx context.Context, sessionID, topic string, n int) ([]session.Question, error) {
	if n <= 0 {
		return nil, session.Validationf("count", "must request at least one question, got %d", n)
	}

	snap, err := o.reg.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap.Status != session.StatusActive {
		return nil, &session.ConcurrencyConflict{SessionID: sessionID, Op: "generate_questions", Status: snap.Status}
	}

	settings := toLLMSnapshot(snap.Settings)
	avoid := make([]string, len(snap.Questions))
	for i, q := range snap.Questions {
		avoid[i] = q.Text
	}

	generated, outcome := call(ctx, o, "generate",
		func(ctx context.Context) ([]llm.GeneratedQuestion, error) {
			return o.backend.GenerateQuestions(ctx, settings, topic, avoid, n)
		},
		func() []llm.GeneratedQuestion {
			return o.fallback.Questions(topic, avoid, n)
		})

	appended := make([]session.Question, 0, len(generated))
	for _, g := range generated {
		appended = append(appended, session.Question{
			ID:     uuid.NewString(),
			Text:   g.Text,
			Source: session.SourceGenerated,
		})
	}

	if _, err := o.reg.Mutate(ctx, sessionID, func(s *session.Session) error {
		if s.Status != session.StatusActive {
			return &session.ConcurrencyConflict{SessionID: sessionID, Op: "generate_questions", Status: s.Status}
		}
		s.Questions = append(s.Questions, appended...)
		return nil
	}); err != nil {
		return nil, err
	}

	observe.Logger(ctx).Info("questions generated",
		"session_id", sessionID,
		"count", len(appended),
		"origin", outcome.Label(),
		"settings_snapshot_id", settings.SnapshotID)
	return appended, nil
}

// GenerateExample produces an example answer for the given question and
// stores it on the question. Returns the example text.
func (o *Orchestrator) GenerateExample(ctx context.Context, sessionID, questionID string) (string, error) {
	snap, err := o.reg.Snapshot(ctx, sessionID)
	if err != nil {
		return "", err
	}
	q := snap.QuestionByID(questionID)
	if q == nil {
		return "", session.Validationf("question_id", "unknown question %q", questionID)
	}

	settings := toLLMSnapshot(snap.Settings)
	questionText := q.Text

	example, outcome := call(ctx, o, "example",
		func(ctx context.Context) (string, error) {
			return o.backend.GenerateExample(ctx, settings, questionText)
		},
		func() string {
			return o.fallback.Example(questionText)
		})

	if _, err := o.reg.Mutate(ctx, sessionID, func(s *session.Session) error {
		sq := s.QuestionByID(questionID)
		if sq == nil {
			return session.Validationf("question_id", "unknown question %q", questionID)
		}
		sq.ExampleAnswer = example
		return nil
	}); err != nil {
		return "", err
	}

	observe.Logger(ctx).Info("example generated",
		"session_id", sessionID,
		"question_id", questionID,
		"origin", outcome.Label(),
		"settings_snapshot_id", settings.SnapshotID)
	return example, nil
}

// EvaluateAnswer records the candidate's answer and the coach's evaluation of
// it. The evaluation is attributed to the settings snapshot captured at
// dispatch, even if the settings change while the backend call is in flight.
func (o *Orchestrator) EvaluateAnswer(ctx context.Context, sessionID, questionID, answer string) (session.Evaluation, error) {
	if strings.TrimSpace(answer) == "" {
		return session.Evaluation{}, session.Validationf("answer", "must not be empty")
	}

	snap, err := o.reg.Snapshot(ctx, sessionID)
	if err != nil {
		return session.Evaluation{}, err
	}
	if snap.Status != session.StatusActive {
		return session.Evaluation{}, &session.ConcurrencyConflict{SessionID: sessionID, Op: "evaluate_answer", Status: snap.Status}
	}
	q := snap.QuestionByID(questionID)
	if q == nil {
		return session.Evaluation{}, session.Validationf("question_id", "unknown question %q", questionID)
	}

	settings := toLLMSnapshot(snap.Settings)
	questionText := q.Text

	result, outcome := call(ctx, o, "evaluate",
		func(ctx context.Context) (llm.Evaluation, error) {
			return o.backend.EvaluateAnswer(ctx, settings, questionText, answer)
		},
		func() llm.Evaluation {
			return o.fallback.Evaluate(questionText, answer)
		})

	eval := session.Evaluation{
		QuestionID:         questionID,
		Score:              result.Score,
		Feedback:           result.Feedback,
		SettingsSnapshotID: settings.SnapshotID,
		Origin:             outcome.Label(),
	}

	if _, err := o.reg.Mutate(ctx, sessionID, func(s *session.Session) error {
		if s.Status != session.StatusActive {
			return &session.ConcurrencyConflict{SessionID: sessionID, Op: "evaluate_answer", Status: s.Status}
		}
		if s.QuestionByID(questionID) == nil {
			return session.Validationf("question_id", "unknown question %q", questionID)
		}
		s.Answers[questionID] = answer
		s.Evaluations[questionID] = eval
		return nil
	}); err != nil {
		return session.Evaluation{}, err
	}

	observe.Logger(ctx).Info("answer evaluated",
		"session_id", sessionID,
		"question_id", questionID,
		"score", eval.Score,
		"origin", eval.Origin,
		"settings_snapshot_id", eval.SettingsSnapshotID)
	return eval, nil
}

// call runs one backend call kind under the retry-then-fallback discipline
// and records attempt and latency metrics. A free function because methods
// cannot be generic.
func call[T any](ctx context.Context, o *Orchestrator, kind string, fn func(ctx context.Context) (T, error), fb func() T) (T, resilience.Outcome) {
	start := time.Now()
	v, outcome := resilience.Do(ctx, kind, o.timeout, fn, fb)
	o.metrics.RecordBackendDuration(ctx, kind, outcome.Label(), time.Since(start).Seconds())

	status := "ok"
	if outcome.Fallback {
		status = "error"
	}
	o.metrics.RecordBackendAttempt(ctx, kind, outcome.Label(), status)
	return v, outcome
}

// toLLMSnapshot converts session settings to the backend snapshot form.
func toLLMSnapshot(s session.AgentSettings) llm.Snapshot {
	return llm.Snapshot{
		ModelID:    s.ModelID,
		Effort:     string(s.Effort),
		Verbosity:  string(s.Verbosity),
		SnapshotID: s.SnapshotID,
	}
}
