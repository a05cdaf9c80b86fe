// Package settings enforces the approved model matrix for agent settings and
// applies settings changes with snapshot semantics: every accepted change
// produces a new immutable snapshot id, and in-flight backend calls keep the
// snapshot they were dispatched with.
package settings

import (
	"slices"

	"github.com/prepdeck/prepdeck/internal/session"
)

// ModelSpec describes one approved model and the reasoning-effort and
// verbosity levels it supports. Combinations outside the matrix are rejected
// as a whole; there is no silent coercion to a nearby valid value.
type ModelSpec struct {
	ID        string
	Efforts   []session.Effort
	Verbosity []session.Verbosity
}

// matrix is the approved model matrix. Order matters only for listing.
var matrix = []ModelSpec{
	{
		ID:        "gpt-5",
		Efforts:   []session.Effort{session.EffortMedium, session.EffortHigh},
		Verbosity: []session.Verbosity{session.VerbosityLow, session.VerbosityMedium, session.VerbosityHigh},
	},
	{
		ID:        "gpt-5-mini",
		Efforts:   []session.Effort{session.EffortMedium},
		Verbosity: []session.Verbosity{session.VerbosityLow, session.VerbosityMedium},
	},
	{
		ID:        "o4-mini",
		Efforts:   []session.Effort{session.EffortMedium, session.EffortHigh},
		Verbosity: []session.Verbosity{session.VerbosityLow, session.VerbosityMedium},
	},
}

// voices is the catalog of selectable coach voices. It mirrors what the
// realtime provider offers; a voice change takes effect at the next voice
// handshake, never mid-connection.
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

// Models returns the approved model matrix.
func Models() []ModelSpec {
	out := make([]ModelSpec, len(matrix))
	copy(out, matrix)
	return out
}

// Voices returns the selectable voice ids.
func Voices() []string {
	out := make([]string, len(voices))
	copy(out, voices)
	return out
}

// lookupModel returns the spec for id, or nil if the model is not approved.
func lookupModel(id string) *ModelSpec {
	for i := range matrix {
		if matrix[i].ID == id {
			return &matrix[i]
		}
	}
	return nil
}

// Validate checks a full settings value against the matrix and voice catalog.
// It returns a [session.ValidationError] naming the first offending field.
func Validate(s session.AgentSettings) error {
	spec := lookupModel(s.ModelID)
	if spec == nil {
		return session.Validationf("model_id", "model %q is not approved", s.ModelID)
	}
	if !slices.Contains(spec.Efforts, s.Effort) {
		return session.Validationf("effort", "effort %q is not supported by model %q", s.Effort, s.ModelID)
	}
	if !slices.Contains(spec.Verbosity, s.Verbosity) {
		return session.Validationf("verbosity", "verbosity %q is not supported by model %q", s.Verbosity, s.ModelID)
	}
	if !slices.Contains(voices, s.VoiceID) {
		return session.Validationf("voice_id", "voice %q is not in the catalog", s.VoiceID)
	}
	return nil
}
