// Package openai provides a reasoning backend backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/prepdeck/prepdeck/pkg/provider/llm"
)

// Compile-time interface check.
var _ llm.Backend = (*Backend)(nil)

// Backend implements [llm.Backend] using OpenAI chat completions.
type Backend struct {
	client oai.Client
}

// config holds optional configuration for the backend.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Backend.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Primarily used in
// tests to point at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout. The orchestrator additionally
// applies its own per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI reasoning backend.
func New(apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Backend{client: oai.NewClient(reqOpts...)}, nil
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
		return "", fmt.Errorf("openai: empty example response")
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

// complete sends one chat completion bound to the snapshot's model and
// reasoning effort and returns the assistant's text.
func (b *Backend) complete(ctx context.Context, snap llm.Snapshot, prompt string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(snap.ModelID),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(llm.SystemPrompt(snap)),
			oai.UserMessage(prompt),
		},
	}
	if snap.Effort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(snap.Effort)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
