package settings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prepdeck/prepdeck/internal/session"
)

// Update is a partial settings change. Nil fields keep their current value;
// the merged result is validated as a whole before anything is written, so a
// rejected update leaves the session's settings untouched.
type Update struct {
	ModelID   *string            `json:"model_id,omitempty"`
	Effort    *session.Effort    `json:"effort,omitempty"`
	Verbosity *session.Verbosity `json:"verbosity,omitempty"`
	VoiceID   *string            `json:"voice_id,omitempty"`
}

// empty reports whether the update changes nothing.
func (u Update) empty() bool {
	return u.ModelID == nil && u.Effort == nil && u.Verbosity == nil && u.VoiceID == nil
}

// Guard applies settings changes through the session registry, producing a
// new snapshot id per accepted change. Snapshots are never retroactive: calls
// already dispatched keep the snapshot they captured, and a voice change only
// takes effect at the next realtime handshake.
type Guard struct {
	reg *session.Registry
}

// NewGuard creates a Guard bound to the registry.
func NewGuard(reg *session.Registry) *Guard {
	return &Guard{reg: reg}
}

// Apply merges upd onto the session's current settings, validates the result
// against the approved matrix, and installs it as a new snapshot. It returns
// the installed settings.
func (g *Guard) Apply(ctx context.Context, sessionID string, upd Update) (session.AgentSettings, error) {
	if upd.empty() {
		return session.AgentSettings{}, session.Validationf("settings", "update changes nothing")
	}

	var installed session.AgentSettings
	_, err := g.reg.Mutate(ctx, sessionID, func(s *session.Session) error {
		next := s.Settings
		if upd.ModelID != nil {
			next.ModelID = *upd.ModelID
		}
		if upd.Effort != nil {
			next.Effort = *upd.Effort
		}
		if upd.Verbosity != nil {
			next.Verbosity = *upd.Verbosity
		}
		if upd.VoiceID != nil {
			next.VoiceID = *upd.VoiceID
		}

		if err := Validate(next); err != nil {
			return err
		}

		s.SettingsSeq++
		next.SnapshotID = fmt.Sprintf("set-%d", s.SettingsSeq)
		s.Settings = next
		installed = next
		return nil
	})
	if err != nil {
		return session.AgentSettings{}, err
	}

	slog.Info("settings snapshot installed",
		"session_id", sessionID,
		"snapshot_id", installed.SnapshotID,
		"model_id", installed.ModelID,
		"effort", installed.Effort,
		"verbosity", installed.Verbosity,
		"voice_id", installed.VoiceID)
	return installed, nil
}

// Current returns the session's current settings snapshot.
func (g *Guard) Current(ctx context.Context, sessionID string) (session.AgentSettings, error) {
	snap, err := g.reg.Snapshot(ctx, sessionID)
	if err != nil {
		return session.AgentSettings{}, err
	}
	return snap.Settings, nil
}
