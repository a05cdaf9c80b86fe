package llm

import (
	"strings"
	"testing"
)

func TestParseQuestions_Strict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"bare array", `["Q one?", "Q two?"]`, 2, false},
		{"fenced json", "```json\n[\"Q one?\"]\n```", 1, false},
		{"fenced without language", "```\n[\"Q one?\"]\n```", 1, false},
		{"surrounding whitespace", "  [\"Q one?\"]  ", 1, false},
		{"empty array", `[]`, 0, true},
		{"blank question", `["Q one?", "  "]`, 0, true},
		{"not json", "Here are some questions: 1. Why?", 0, true},
		{"object instead of array", `{"questions": ["Q?"]}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuestions(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseQuestions(%q) = %v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQuestions(%q): %v", tt.raw, err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParseQuestions_TrimsWhitespace(t *testing.T) {
	got, err := ParseQuestions(`["  Q one?  "]`)
	if err != nil {
		t.Fatalf("ParseQuestions: %v", err)
	}
	if got[0].Text != "Q one?" {
		t.Fatalf("Text = %q, want trimmed", got[0].Text)
	}
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Evaluation
		wantErr bool
	}{
		{"valid", `{"score": 72, "feedback": "Good structure."}`, Evaluation{Score: 72, Feedback: "Good structure."}, false},
		{"fenced", "```json\n{\"score\": 100, \"feedback\": \"Excellent.\"}\n```", Evaluation{Score: 100, Feedback: "Excellent."}, false},
		{"score too high", `{"score": 120, "feedback": "x"}`, Evaluation{}, true},
		{"negative score", `{"score": -1, "feedback": "x"}`, Evaluation{}, true},
		{"blank feedback", `{"score": 50, "feedback": "   "}`, Evaluation{}, true},
		{"not json", "I would give this a 7/10.", Evaluation{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvaluation(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseEvaluation(%q) = %+v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEvaluation(%q): %v", tt.raw, err)
			}
			if got.Score != tt.want.Score || got.Feedback != tt.want.Feedback {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestQuestionsPrompt_IncludesAvoidList(t *testing.T) {
	p := QuestionsPrompt("system design", []string{"Tell me about caching."}, 3)
	if !strings.Contains(p, "system design") {
		t.Fatalf("prompt %q missing topic", p)
	}
	if !strings.Contains(p, "Tell me about caching.") {
		t.Fatalf("prompt %q missing avoid entry", p)
	}
	if !strings.Contains(p, "JSON array") {
		t.Fatalf("prompt %q missing format instruction", p)
	}
}

func TestSystemPrompt_VerbosityShapesInstruction(t *testing.T) {
	low := SystemPrompt(Snapshot{Verbosity: "low"})
	high := SystemPrompt(Snapshot{Verbosity: "high"})
	if low == high {
		t.Fatal("verbosity levels must produce different instructions")
	}
	if !strings.Contains(low, "brief") {
		t.Fatalf("low prompt %q missing brevity instruction", low)
	}
	if !strings.Contains(high, "detailed") {
		t.Fatalf("high prompt %q missing detail instruction", high)
	}
}
