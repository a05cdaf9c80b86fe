// Package llm defines the Backend interface for the reasoning models that
// power question generation, example answers, and answer evaluation.
//
// A backend wraps a remote or local model API (OpenAI, or anything reachable
// through any-llm-go) and exposes the three coaching operations the
// orchestrator needs, parameterized by an immutable settings snapshot.
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Snapshot is the settings snapshot a call is bound to. It is captured by
// the orchestrator at dispatch time; a settings change after dispatch never
// alters an in-flight call.
type Snapshot struct {
	// ModelID selects the model within the backend.
	ModelID string

	// Effort is the reasoning-effort level: "medium" or "high".
	Effort string

	// Verbosity is the response verbosity: "low", "medium", or "high".
	Verbosity string

	// SnapshotID identifies this snapshot for attribution in results.
	SnapshotID string
}

// GeneratedQuestion is one interview question produced by the backend.
type GeneratedQuestion struct {
	Text string
}

// Evaluation is the backend's assessment of a candidate answer.
type Evaluation struct {
	// Score is a 0–100 assessment.
	Score int

	// Feedback is prose feedback for the candidate.
	Feedback string
}

// Backend is the abstraction over any reasoning model.
//
// All methods return an error for transport failures, timeouts, and
// malformed model output alike; the orchestrator treats every error the same
// way — it consumes one attempt of the retry budget.
type Backend interface {
	// GenerateQuestions produces n interview questions about topic,
	// avoiding near-duplicates of the prompts in avoid.
	GenerateQuestions(ctx context.Context, snap Snapshot, topic string, avoid []string, n int) ([]GeneratedQuestion, error)

	// GenerateExample produces an example strong answer to question.
	GenerateExample(ctx context.Context, snap Snapshot, question string) (string, error)

	// EvaluateAnswer scores and critiques the candidate's answer to
	// question.
	EvaluateAnswer(ctx context.Context, snap Snapshot, question, answer string) (Evaluation, error)
}
