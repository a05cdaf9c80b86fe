package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SystemPrompt renders the coaching persona and the verbosity instruction
// for the given snapshot. Shared by all backend adapters so that switching
// backends does not change coaching behaviour.
func SystemPrompt(snap Snapshot) string {
	var b strings.Builder
	b.WriteString("You are an experienced interview coach. ")
	b.WriteString("You help candidates practice by asking realistic interview questions, ")
	b.WriteString("showing strong example answers, and giving honest, constructive feedback.\n")

	switch snap.Verbosity {
	case "low":
		b.WriteString("Keep responses brief: one or two sentences of feedback, no preamble.")
	case "high":
		b.WriteString("Give thorough, detailed responses with concrete suggestions and examples.")
	default:
		b.WriteString("Keep responses focused: a short paragraph at most.")
	}
	return b.String()
}

// QuestionsPrompt renders the user prompt for question generation. The model
// is instructed to answer with a bare JSON array of strings so the response
// can be parsed strictly.
func QuestionsPrompt(topic string, avoid []string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d interview question(s)", n)
	if topic != "" {
		fmt.Fprintf(&b, " about %q", topic)
	}
	b.WriteString(".\n")
	if len(avoid) > 0 {
		b.WriteString("Do not repeat or closely paraphrase any of these already-asked questions:\n")
		for _, q := range avoid {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	b.WriteString("Respond with ONLY a JSON array of question strings, no other text.")
	return b.String()
}

// ParseQuestions decodes a question-generation response. A response that is
// not a non-empty JSON array of non-empty strings is a malformed-response
// error, which consumes a retry attempt.
func ParseQuestions(raw string) ([]GeneratedQuestion, error) {
	var texts []string
	if err := json.Unmarshal([]byte(extractJSON(raw)), &texts); err != nil {
		return nil, fmt.Errorf("llm: malformed questions response: %w", err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("llm: empty questions response")
	}

	out := make([]GeneratedQuestion, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("llm: blank question in response")
		}
		out = append(out, GeneratedQuestion{Text: t})
	}
	return out, nil
}

// ExamplePrompt renders the user prompt for example-answer generation.
func ExamplePrompt(question string) string {
	return fmt.Sprintf(
		"Write a strong example answer a well-prepared candidate could give to this interview question:\n\n%s\n\nRespond with only the answer text.",
		question,
	)
}

// EvaluationPrompt renders the user prompt for answer evaluation. The model
// is instructed to answer with a single JSON object.
func EvaluationPrompt(question, answer string) string {
	return fmt.Sprintf(
		"Evaluate the candidate's answer to an interview question.\n\nQuestion: %s\n\nAnswer: %s\n\nRespond with ONLY a JSON object of the form {\"score\": <0-100 integer>, \"feedback\": \"<your feedback>\"}.",
		question, answer,
	)
}

// ParseEvaluation decodes an evaluation response and validates the score
// range.
func ParseEvaluation(raw string) (Evaluation, error) {
	var ev Evaluation
	if err := json.Unmarshal([]byte(extractJSON(raw)), &struct {
		Score    *int    `json:"score"`
		Feedback *string `json:"feedback"`
	}{&ev.Score, &ev.Feedback}); err != nil {
		return Evaluation{}, fmt.Errorf("llm: malformed evaluation response: %w", err)
	}
	if ev.Score < 0 || ev.Score > 100 {
		return Evaluation{}, fmt.Errorf("llm: evaluation score %d out of range [0, 100]", ev.Score)
	}
	if strings.TrimSpace(ev.Feedback) == "" {
		return Evaluation{}, fmt.Errorf("llm: evaluation has no feedback")
	}
	return ev, nil
}

// extractJSON strips markdown code fences that some models wrap around JSON
// despite instructions, returning the innermost payload.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
