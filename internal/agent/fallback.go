package agent

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/prepdeck/prepdeck/pkg/provider/llm"
)

// Fallback produces deterministic coaching results when the reasoning backend
// is unavailable. Given the same inputs it always returns the same outputs,
// so a degraded session behaves predictably and tests can assert exact
// values. Results carry no randomness and make no network calls.
type Fallback struct{}

// questionBank is the canned question pool the fallback draws from, in fixed
// order. Topic-agnostic behavioural questions that work for any role.
var questionBank = []string{
	"Tell me about yourself and what draws you to this role.",
	"Describe a challenging problem you solved recently and how you approached it.",
	"Tell me about a time you disagreed with a teammate. How did you resolve it?",
	"What is a project you are proud of, and what was your specific contribution?",
	"Describe a time you had to learn something new under time pressure.",
	"Tell me about a mistake you made at work and what you changed afterwards.",
	"How do you prioritise when everything seems urgent?",
	"Describe a time you received difficult feedback. What did you do with it?",
	"Tell me about a time you had to influence a decision without authority.",
	"Where do you want to grow in the next two years?",
}

// bankDuplicateThreshold mirrors the synchronizer-side dedup bar: a bank
// question this similar to an already-asked one is skipped.
const bankDuplicateThreshold = 0.9

// Questions returns up to n questions from the bank that are not
// near-duplicates of anything in avoid. When the bank cannot cover n, it
// tops up with numbered topic prompts so the caller always gets n questions.
func (Fallback) Questions(topic string, avoid []string, n int) []llm.GeneratedQuestion {
	normAvoid := make([]string, len(avoid))
	for i, a := range avoid {
		normAvoid[i] = normalizeText(a)
	}

	out := make([]llm.GeneratedQuestion, 0, n)
	for _, q := range questionBank {
		if len(out) == n {
			break
		}
		if bankDuplicate(normalizeText(q), normAvoid) {
			continue
		}
		out = append(out, llm.GeneratedQuestion{Text: q})
		normAvoid = append(normAvoid, normalizeText(q))
	}

	for i := len(out); i < n; i++ {
		t := topic
		if t == "" {
			t = "your experience"
		}
		out = append(out, llm.GeneratedQuestion{
			Text: fmt.Sprintf("Follow-up %d: what else should an interviewer know about %s?", i+1, t),
		})
	}
	return out
}

// Example returns a templated answer skeleton for the question. It coaches
// structure rather than content, which is the honest best a deterministic
// fallback can do.
func (Fallback) Example(question string) string {
	return fmt.Sprintf(
		"A strong answer to %q follows a clear structure: "+
			"start with the situation in one or two sentences, "+
			"state the task you owned, "+
			"walk through the actions you took and why, "+
			"and close with the measurable result and what you learned.",
		question,
	)
}

// Evaluate scores an answer with a lexical heuristic: keyword coverage of the
// question plus answer development, both deterministic.
//
// Coverage counts question keywords (length > 3) that appear in the answer,
// matching fuzzily so inflections still count. Development rewards answers
// long enough to carry situation, action, and result.
func (Fallback) Evaluate(question, answer string) llm.Evaluation {
	keywords := keywordsOf(question)
	answerWords := strings.Fields(normalizeText(answer))

	covered := 0
	for _, kw := range keywords {
		if fuzzyContains(answerWords, kw) {
			covered++
		}
	}
	coverage := 0.0
	if len(keywords) > 0 {
		coverage = float64(covered) / float64(len(keywords))
	}

	development := float64(len(answerWords)) / 80.0
	if development > 1 {
		development = 1
	}

	score := int(40 + coverage*30 + development*30)
	if score > 100 {
		score = 100
	}

	var fb strings.Builder
	fb.WriteString("Automated assessment (coach temporarily unavailable). ")
	switch {
	case coverage >= 0.5:
		fb.WriteString("Your answer addresses the question directly. ")
	case covered > 0:
		fb.WriteString("Your answer touches the question but drifts; tie each point back to what was asked. ")
	default:
		fb.WriteString("Your answer does not clearly engage with the question; restate it in your opening sentence. ")
	}
	switch {
	case len(answerWords) < 25:
		fb.WriteString("It is also quite short — add the situation, your actions, and the outcome.")
	case len(answerWords) > 250:
		fb.WriteString("Consider tightening it; interviewers lose the thread past two minutes.")
	default:
		fb.WriteString("The length is appropriate for an interview answer.")
	}

	return llm.Evaluation{Score: score, Feedback: fb.String()}
}

// keywordsOf extracts the question's content words: lowercase tokens longer
// than three characters.
func keywordsOf(question string) []string {
	var out []string
	for _, w := range strings.Fields(normalizeText(question)) {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

// fuzzyContains reports whether any word matches kw exactly or within one
// edit, so "prioritise"/"prioritised" still counts.
func fuzzyContains(words []string, kw string) bool {
	for _, w := range words {
		if w == kw || matchr.Levenshtein(w, kw) <= 1 {
			return true
		}
	}
	return false
}

// bankDuplicate reports whether norm is a near-duplicate of any avoided text.
func bankDuplicate(norm string, avoid []string) bool {
	for _, a := range avoid {
		if norm == a || matchr.JaroWinkler(norm, a, true) >= bankDuplicateThreshold {
			return true
		}
	}
	return false
}

// normalizeText lowercases, strips basic punctuation, and collapses
// whitespace for comparison.
func normalizeText(text string) string {
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '?', '!', ':', ';', '"', '\'':
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
