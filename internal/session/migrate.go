package session

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Default settings applied at session creation and synthesized during
// migration when a record predates the settings field. Kept in sync with the
// approved matrix in the settings package.
const (
	DefaultModelID   = "gpt-5"
	DefaultEffort    = EffortMedium
	DefaultVerbosity = VerbosityMedium
	DefaultVoiceID   = "alloy"
)

// DefaultSettings returns the settings snapshot a fresh session starts with.
// SnapshotID "set-0" identifies the creation-time snapshot.
func DefaultSettings() AgentSettings {
	return AgentSettings{
		ModelID:    DefaultModelID,
		Effort:     DefaultEffort,
		Verbosity:  DefaultVerbosity,
		VoiceID:    DefaultVoiceID,
		SnapshotID: "set-0",
	}
}

// Load deserializes a persisted session record and migrates it to
// [CurrentSchemaVersion].
//
// Migration is lazy and lenient: any field absent from an older record is
// filled with a documented safe default (empty transcript, empty run history,
// default settings, empty answer map). Only structural corruption — bytes
// that do not decode, or a record without an id — yields a [MigrationError];
// such a session is excluded from use but its record is not deleted.
func Load(raw []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &MigrationError{Reason: "record does not decode", Err: err}
	}
	if s.ID == "" {
		return nil, &MigrationError{Reason: "record has no session id"}
	}

	if s.SchemaVersion < CurrentSchemaVersion {
		migrate(&s)
	}

	// Defensive defaults regardless of version: no field is ever absent
	// post-load.
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	if s.Evaluations == nil {
		s.Evaluations = map[string]Evaluation{}
	}
	if s.Transcript == nil {
		s.Transcript = []TranscriptEntry{}
	}
	if s.RunHistory == nil {
		s.RunHistory = []PracticeRun{}
	}

	return &s, nil
}

// migrate applies per-version migration steps in order and stamps the current
// version. Safe defaults per field:
//
//	v1 → v2: transcript = [], next_seq = 1, settings = DefaultSettings()
//	v2 → v3: run_history = [], active run synthesized ("run-legacy"),
//	         settings.snapshot_id = "set-0" when absent
func migrate(s *Session) {
	from := s.SchemaVersion

	if s.SchemaVersion < 2 {
		if s.Transcript == nil {
			s.Transcript = []TranscriptEntry{}
		}
		if s.NextSeq == 0 {
			s.NextSeq = 1
		}
		if s.Settings.ModelID == "" {
			s.Settings = DefaultSettings()
		}
		s.SchemaVersion = 2
	}

	if s.SchemaVersion < 3 {
		if s.RunHistory == nil {
			s.RunHistory = []PracticeRun{}
		}
		if s.ActiveRunID == "" {
			s.ActiveRunID = "run-legacy"
		}
		if s.Settings.SnapshotID == "" {
			s.Settings.SnapshotID = "set-0"
		}
		if !s.Status.IsValid() {
			s.Status = StatusActive
		}
		s.SchemaVersion = 3
	}

	slog.Info("migrated session record",
		"session_id", s.ID,
		"from_version", from,
		"to_version", s.SchemaVersion,
	)
}

// New creates a fresh session with the given id, run id, and default
// settings. The first transcript sequence number is 1.
func New(id, runID string, now time.Time) *Session {
	return &Session{
		ID:            id,
		SchemaVersion: CurrentSchemaVersion,
		Status:        StatusActive,
		CreatedAt:     now,
		Questions:     []Question{},
		Answers:       map[string]string{},
		Evaluations:   map[string]Evaluation{},
		ActiveRunID:   runID,
		RunStartSeq:   1,
		RunHistory:    []PracticeRun{},
		Transcript:    []TranscriptEntry{},
		NextSeq:       1,
		Settings:      DefaultSettings(),
	}
}
