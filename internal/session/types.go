// Package session owns the canonical session record for Prepdeck interview
// sessions and the state machine that mutates it.
//
// A Session is the root aggregate: questions, answers, evaluations, the voice
// transcript, the current agent settings snapshot, and the history of
// completed practice runs. All mutation goes through the [Registry], which
// serializes operations per session; other packages never hold a live
// reference to a Session — they receive deep copies via [Registry.Snapshot]
// or operate inside a mutation closure passed to [Registry.Mutate].
package session

import "time"

// CurrentSchemaVersion is the schema version stamped on every record written
// by this build. [Load] migrates older records up to this version.
const CurrentSchemaVersion = 3

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive means a run is in progress and accepting answers.
	StatusActive Status = "active"

	// StatusCompleted means the active run has been completed; the session
	// can be reopened with a practice-again transition.
	StatusCompleted Status = "completed"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusCompleted
}

// Role identifies which side of the interview produced a transcript entry.
type Role string

const (
	RoleCoach     Role = "coach"
	RoleCandidate Role = "candidate"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleCoach || r == RoleCandidate
}

// QuestionSource records how a question entered the session.
type QuestionSource string

const (
	// SourceGenerated marks questions produced by the reasoning backend or
	// its fallback heuristic.
	SourceGenerated QuestionSource = "generated"

	// SourceAdded marks questions supplied by the caller, e.g. via a
	// practice-again extend transition.
	SourceAdded QuestionSource = "added"
)

// Effort is the reasoning-effort level requested from the backend.
type Effort string

const (
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// IsValid reports whether e is a recognised effort level.
func (e Effort) IsValid() bool {
	return e == EffortMedium || e == EffortHigh
}

// Verbosity is the response-verbosity level requested from the backend.
type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

// IsValid reports whether v is a recognised verbosity level.
func (v Verbosity) IsValid() bool {
	switch v {
	case VerbosityLow, VerbosityMedium, VerbosityHigh:
		return true
	}
	return false
}

// Question is one interview question in a session's ordered question list.
type Question struct {
	// ID uniquely identifies the question within the session.
	ID string `json:"id"`

	// Text is the question prompt shown to the candidate.
	Text string `json:"text"`

	// Source records whether the question was generated or added.
	Source QuestionSource `json:"source"`

	// ExampleAnswer is a coach-produced example answer, when one has been
	// requested. Empty until generated.
	ExampleAnswer string `json:"example_answer,omitempty"`
}

// TranscriptEntry is one turn of the merged voice transcript. There is at
// most one entry per turn id: interim speech events rewrite Text in place,
// and the final event for the turn closes it. Seq is assigned at acceptance
// time and never changes afterwards.
type TranscriptEntry struct {
	// TurnID identifies the utterance this entry renders. Assigned by the
	// realtime transport.
	TurnID string `json:"turn_id"`

	// Role is the speaker: coach or candidate.
	Role Role `json:"role"`

	// Text is the current rendering of the utterance. Provisional while the
	// turn is open; authoritative once Final is set.
	Text string `json:"text"`

	// Seq is the session-scoped monotonic sequence number assigned when the
	// first event for this turn was accepted.
	Seq int64 `json:"seq"`

	// Final reports whether the turn has been closed by a final event.
	// Once set, further events for the turn are discarded.
	Final bool `json:"final"`

	// CreatedAt is when the entry was first accepted.
	CreatedAt time.Time `json:"ts"`
}

// AgentSettings is an immutable configuration snapshot: the model, reasoning
// effort, verbosity, and voice in effect for operations dispatched while it
// is current. Mutations via the settings guard produce a new snapshot with a
// fresh SnapshotID; they never alter history attributed to a prior snapshot.
type AgentSettings struct {
	ModelID   string    `json:"model_id"`
	Effort    Effort    `json:"effort"`
	Verbosity Verbosity `json:"verbosity"`
	VoiceID   string    `json:"voice_id"`

	// SnapshotID orders snapshots by creation within a session.
	SnapshotID string `json:"snapshot_id"`
}

// SeqRange is the inclusive transcript slice [Start, End] covered by a run,
// in sequence numbers. A run with no transcript has Start > End.
type SeqRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// PracticeRun is a frozen record of one completed pass through the question
// set. Immutable once appended to the session's run history.
type PracticeRun struct {
	RunID              string    `json:"run_id"`
	CompletedAt        time.Time `json:"completed_at"`
	QuestionIDs        []string  `json:"question_ids"`
	SettingsSnapshotID string    `json:"settings_snapshot_id"`
	TranscriptRange    SeqRange  `json:"transcript_range"`
}

// Evaluation is the coach's assessment of one answer, produced by the
// reasoning backend or its fallback heuristic.
type Evaluation struct {
	// QuestionID is the question this evaluation refers to.
	QuestionID string `json:"question_id"`

	// Score is a 0–100 assessment of the answer.
	Score int `json:"score"`

	// Feedback is the coach's prose feedback.
	Feedback string `json:"feedback"`

	// SettingsSnapshotID records which settings snapshot the evaluating call
	// was dispatched under.
	SettingsSnapshotID string `json:"settings_snapshot_id"`

	// Origin labels how the result was obtained: "attempt-1-of-2",
	// "attempt-2-of-2", or "fallback".
	Origin string `json:"origin"`
}

// Session is the root aggregate for one coaching session.
type Session struct {
	ID            string `json:"id"`
	SchemaVersion int    `json:"schema_version"`
	Status        Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`

	// Questions is the ordered question list for the session. Question ids
	// are stable across runs; practice-again reuses or extends this list.
	Questions []Question `json:"questions"`

	// Answers holds the typed answer text per question id for the active run.
	Answers map[string]string `json:"answers"`

	// Evaluations holds the coach's evaluation per question id for the
	// active run.
	Evaluations map[string]Evaluation `json:"evaluations,omitempty"`

	// ActiveRunID identifies the run currently in progress (or the run that
	// just completed, while status is completed).
	ActiveRunID string `json:"active_run_id"`

	// RunStartSeq is the first transcript sequence number belonging to the
	// active run. Entries below it are frozen in run history.
	RunStartSeq int64 `json:"run_start_seq"`

	// RunHistory is the ordered list of completed run snapshots.
	RunHistory []PracticeRun `json:"run_history"`

	// Transcript is the append-only merged transcript across all runs.
	// Entries are never removed; each run's slice is delimited by the
	// SeqRange in its PracticeRun record.
	Transcript []TranscriptEntry `json:"transcript"`

	// NextSeq is the sequence number the next accepted transcript event
	// will receive.
	NextSeq int64 `json:"next_seq"`

	// Settings is the current settings snapshot.
	Settings AgentSettings `json:"settings"`

	// SettingsSeq counts settings snapshots created for this session; used
	// to derive totally ordered snapshot ids.
	SettingsSeq int64 `json:"settings_seq"`

	// AnomalyCount counts late events discarded for already-closed turns.
	AnomalyCount int64 `json:"anomaly_count,omitempty"`
}

// ActiveTranscript returns the transcript entries belonging to the active
// run, i.e. those with Seq >= RunStartSeq. The returned slice aliases the
// session's transcript; callers outside a mutation closure must work on a
// snapshot.
func (s *Session) ActiveTranscript() []TranscriptEntry {
	for i, e := range s.Transcript {
		if e.Seq >= s.RunStartSeq {
			return s.Transcript[i:]
		}
	}
	return nil
}

// QuestionByID returns a pointer to the question with the given id, or nil.
func (s *Session) QuestionByID(id string) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// Answered reports whether the question with the given id has either a typed
// answer or an evaluation in the active run.
func (s *Session) Answered(id string) bool {
	if _, ok := s.Answers[id]; ok {
		return true
	}
	_, ok := s.Evaluations[id]
	return ok
}

// CandidateVoiceTurns counts the candidate's transcript entries in the active
// run. When the run is completed, each spoken turn stands in for a typed
// answer on a question that has none. Interim entries count too: a stream
// that dropped mid-turn still carries the candidate's spoken answer.
func (s *Session) CandidateVoiceTurns() int {
	n := 0
	for _, e := range s.ActiveTranscript() {
		if e.Role == RoleCandidate {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the session, safe to hand out after the
// per-session lock is released.
func (s *Session) Clone() *Session {
	out := *s

	out.Questions = make([]Question, len(s.Questions))
	copy(out.Questions, s.Questions)

	out.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}

	out.Evaluations = make(map[string]Evaluation, len(s.Evaluations))
	for k, v := range s.Evaluations {
		out.Evaluations[k] = v
	}

	out.RunHistory = make([]PracticeRun, len(s.RunHistory))
	copy(out.RunHistory, s.RunHistory)
	for i := range out.RunHistory {
		ids := make([]string, len(s.RunHistory[i].QuestionIDs))
		copy(ids, s.RunHistory[i].QuestionIDs)
		out.RunHistory[i].QuestionIDs = ids
	}

	out.Transcript = make([]TranscriptEntry, len(s.Transcript))
	copy(out.Transcript, s.Transcript)

	return &out
}
