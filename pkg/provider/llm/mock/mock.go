// Package mock provides a scriptable [llm.Backend] for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/prepdeck/prepdeck/pkg/provider/llm"
)

// Compile-time interface check.
var _ llm.Backend = (*Backend)(nil)

// Call records one invocation of the mock.
type Call struct {
	// Kind is "generate", "example", or "evaluate".
	Kind string

	// Snapshot is the settings snapshot the call was bound to.
	Snapshot llm.Snapshot

	// Question is the question text for example/evaluate calls.
	Question string

	// Answer is the answer text for evaluate calls.
	Answer string
}

// Backend is a thread-safe scriptable reasoning backend.
//
// FailFirst makes the first N invocations (across all kinds) return an
// error, which exercises the orchestrator's retry and fallback paths. The
// zero value succeeds on every call with canned results.
type Backend struct {
	mu        sync.Mutex
	calls     []Call
	failFirst int
	failErr   error

	// Questions is returned by GenerateQuestions when non-nil.
	Questions []llm.GeneratedQuestion

	// Example is returned by GenerateExample when non-empty.
	Example string

	// Eval is returned by EvaluateAnswer when Eval.Feedback is non-empty.
	Eval llm.Evaluation
}

// FailFirst makes the next n invocations fail with err.
func (b *Backend) FailFirst(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failFirst = n
	b.failErr = err
}

// Calls returns a copy of all recorded invocations.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// record appends the call and reports whether it should fail.
func (b *Backend) record(c Call) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	if b.failFirst > 0 {
		b.failFirst--
		if b.failErr != nil {
			return b.failErr
		}
		return fmt.Errorf("mock: scripted failure")
	}
	return nil
}

// GenerateQuestions implements [llm.Backend].
func (b *Backend) GenerateQuestions(ctx context.Context, snap llm.Snapshot, topic string, avoid []string, n int) ([]llm.GeneratedQuestion, error) {
	if err := b.record(Call{Kind: "generate", Snapshot: snap}); err != nil {
		return nil, err
	}
	if b.Questions != nil {
		return b.Questions, nil
	}
	out := make([]llm.GeneratedQuestion, n)
	for i := range out {
		out[i] = llm.GeneratedQuestion{Text: fmt.Sprintf("Mock question %d about %s?", i+1, topic)}
	}
	return out, nil
}

// GenerateExample implements [llm.Backend].
func (b *Backend) GenerateExample(ctx context.Context, snap llm.Snapshot, question string) (string, error) {
	if err := b.record(Call{Kind: "example", Snapshot: snap, Question: question}); err != nil {
		return "", err
	}
	if b.Example != "" {
		return b.Example, nil
	}
	return "A mock example answer to: " + question, nil
}

// EvaluateAnswer implements [llm.Backend].
func (b *Backend) EvaluateAnswer(ctx context.Context, snap llm.Snapshot, question, answer string) (llm.Evaluation, error) {
	if err := b.record(Call{Kind: "evaluate", Snapshot: snap, Question: question, Answer: answer}); err != nil {
		return llm.Evaluation{}, err
	}
	if b.Eval.Feedback != "" {
		return b.Eval, nil
	}
	return llm.Evaluation{Score: 75, Feedback: "Mock feedback."}, nil
}
