// Package anyllm provides a reasoning backend backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. It lets Prepdeck coach against any of those backends without a
// dedicated adapter per vendor.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/prepdeck/prepdeck/pkg/provider/llm"
)

// Compile-time interface check.
var _ llm.Backend = (*Backend)(nil)

// Backend implements [llm.Backend] by wrapping any-llm-go.
type Backend struct {
	backend anyllmlib.Provider
}

// New creates a Backend for the given provider name: one of "openai",
// "anthropic", "gemini", "ollama", "mistral".
//
// opts are any-llm-go configuration options (e.g. anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). Without an API key option the provider falls back
// to its usual environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, …).
func New(providerName string, opts ...anyllmlib.Option) (*Backend, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Backend{backend: backend}, nil
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, mistral", providerName)
	}
}

// GenerateQuestions implements [llm.Backend].
func (b *Backend) GenerateQuestions(ctx context.Context, snap llm.Snapshot, topic string, avoid []string, n int) ([]llm.GeneratedQuestion, error) {
	raw, err := b.complete(ctx, snap, llm.QuestionsPrompt(topic, avoid, n))
	if err != nil {
		return nil, err
	}
	return llm.ParseQuestions(raw)
}

// GenerateExample implements [llm.Backend].
func (b *Backend) GenerateExample(ctx context.Context, snap llm.Snapshot, question string) (string, error) {
	raw, err := b.complete(ctx, snap, llm.ExamplePrompt(question))
	if err != nil {
		return "", err
	}
	if raw == "" {
		return "", fmt.Errorf("anyllm: empty example response")
	}
	return raw, nil
}

// EvaluateAnswer implements [llm.Backend].
func (b *Backend) EvaluateAnswer(ctx context.Context, snap llm.Snapshot, question, answer string) (llm.Evaluation, error) {
	raw, err := b.complete(ctx, snap, llm.EvaluationPrompt(question, answer))
	if err != nil {
		return llm.Evaluation{}, err
	}
	return llm.ParseEvaluation(raw)
}

// complete sends one completion bound to the snapshot's model and returns
// the assistant's text.
func (b *Backend) complete(ctx context.Context, snap llm.Snapshot, prompt string) (string, error) {
	params := anyllmlib.CompletionParams{
		Model: snap.ModelID,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: llm.SystemPrompt(snap)},
			{Role: anyllmlib.RoleUser, Content: prompt},
		},
	}

	resp, err := b.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
