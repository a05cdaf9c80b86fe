package run

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prepdeck/prepdeck/internal/session"
	"github.com/prepdeck/prepdeck/pkg/store"
)

// newTestSession creates a registry and a session with the given questions
// already asked and answered (or not).
func newTestSession(t *testing.T, questions []string, answered bool) (*Manager, *session.Registry, string) {
	t.Helper()
	reg := session.NewRegistry(store.NewMemStore())
	created, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = reg.Mutate(context.Background(), created.ID, func(s *session.Session) error {
		for i, text := range questions {
			id := string(rune('a' + i))
			s.Questions = append(s.Questions, session.Question{ID: id, Text: text, Source: session.SourceGenerated})
			if answered {
				s.Answers[id] = "an answer"
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewManager(reg, nil), reg, created.ID
}

func TestComplete_RequiresAllAnswered(t *testing.T) {
	m, _, id := newTestSession(t, []string{"Q one?", "Q two?"}, false)

	_, err := m.Complete(context.Background(), id)
	if !session.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError for unanswered questions", err)
	}
}

func TestComplete_FreezesRunRecord(t *testing.T) {
	m, reg, id := newTestSession(t, []string{"Q one?", "Q two?"}, true)
	ctx := context.Background()

	// Give the run some transcript to delimit.
	_, err := reg.Mutate(ctx, id, func(s *session.Session) error {
		s.Transcript = append(s.Transcript,
			session.TranscriptEntry{TurnID: "t1", Role: session.RoleCoach, Text: "Q one?", Seq: 1, Final: true},
			session.TranscriptEntry{TurnID: "t2", Role: session.RoleCandidate, Text: "An answer.", Seq: 2, Final: true},
		)
		s.NextSeq = 3
		return nil
	})
	if err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	frozen, err := m.Complete(ctx, id)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(frozen.QuestionIDs) != 2 {
		t.Fatalf("QuestionIDs = %v, want 2 ids", frozen.QuestionIDs)
	}
	if frozen.TranscriptRange != (session.SeqRange{Start: 1, End: 2}) {
		t.Fatalf("TranscriptRange = %+v, want [1, 2]", frozen.TranscriptRange)
	}
	if frozen.SettingsSnapshotID != "set-0" {
		t.Fatalf("SettingsSnapshotID = %q, want set-0", frozen.SettingsSnapshotID)
	}

	snap, _ := reg.Snapshot(ctx, id)
	if snap.Status != session.StatusCompleted {
		t.Fatalf("Status = %q, want completed", snap.Status)
	}
	if len(snap.RunHistory) != 1 || snap.RunHistory[0].RunID != frozen.RunID {
		t.Fatalf("RunHistory = %+v, want the frozen run", snap.RunHistory)
	}
}

func TestComplete_OnCompletedSessionConflicts(t *testing.T) {
	m, _, id := newTestSession(t, []string{"Q?"}, true)
	ctx := context.Background()

	if _, err := m.Complete(ctx, id); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	_, err := m.Complete(ctx, id)
	if !session.IsConflict(err) {
		t.Fatalf("second Complete err = %v, want ConcurrencyConflict", err)
	}
}

func TestComplete_VoiceAnsweredRunSucceeds(t *testing.T) {
	m, reg, id := newTestSession(t, []string{"Q one?", "Q two?"}, false)
	ctx := context.Background()

	// Both answers arrive as speech, no typed answers at all. One candidate
	// turn was cut off mid-stream and stays interim; it still counts.
	_, err := reg.Mutate(ctx, id, func(s *session.Session) error {
		s.Transcript = append(s.Transcript,
			session.TranscriptEntry{TurnID: "c1", Role: session.RoleCoach, Text: "Q one?", Seq: 1, Final: true},
			session.TranscriptEntry{TurnID: "a1", Role: session.RoleCandidate, Text: "My first answer", Seq: 2},
			session.TranscriptEntry{TurnID: "a2", Role: session.RoleCandidate, Text: "My second answer.", Seq: 3, Final: true},
			session.TranscriptEntry{TurnID: "c2", Role: session.RoleCoach, Text: "Thanks, that covers it.", Seq: 4, Final: true},
		)
		s.NextSeq = 5
		return nil
	})
	if err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	frozen, err := m.Complete(ctx, id)
	if err != nil {
		t.Fatalf("Complete of voice-answered run: %v", err)
	}
	if frozen.TranscriptRange != (session.SeqRange{Start: 1, End: 4}) {
		t.Fatalf("TranscriptRange = %+v, want [1, 4]", frozen.TranscriptRange)
	}

	runID, err := m.PracticeAgain(ctx, id, ModeExtend, []string{"How do you handle ambiguity?"})
	if err != nil {
		t.Fatalf("PracticeAgain: %v", err)
	}
	if runID == "" {
		t.Fatal("PracticeAgain returned no run id")
	}

	snap, _ := reg.Snapshot(ctx, id)
	if snap.Status != session.StatusActive {
		t.Fatalf("Status = %q, want active", snap.Status)
	}
	if len(snap.Questions) != 3 {
		t.Fatalf("Questions = %d, want 3 after extend", len(snap.Questions))
	}
	if len(snap.RunHistory) != 1 {
		t.Fatalf("RunHistory = %d, want 1", len(snap.RunHistory))
	}
	if len(snap.ActiveTranscript()) != 0 {
		t.Fatalf("ActiveTranscript = %v, want empty for the new run", snap.ActiveTranscript())
	}
}

func TestComplete_VoiceTurnsMustCoverUnansweredQuestions(t *testing.T) {
	m, reg, id := newTestSession(t, []string{"Q one?", "Q two?"}, false)
	ctx := context.Background()

	// One spoken answer cannot cover two open questions.
	_, err := reg.Mutate(ctx, id, func(s *session.Session) error {
		s.Transcript = append(s.Transcript,
			session.TranscriptEntry{TurnID: "a1", Role: session.RoleCandidate, Text: "My only answer.", Seq: 1, Final: true},
		)
		s.NextSeq = 2
		return nil
	})
	if err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	if _, err := m.Complete(ctx, id); !session.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	// Typing the other answer closes the gap.
	_, err = reg.Mutate(ctx, id, func(s *session.Session) error {
		s.Answers["a"] = "typed answer"
		return nil
	})
	if err != nil {
		t.Fatalf("type answer: %v", err)
	}
	if _, err := m.Complete(ctx, id); err != nil {
		t.Fatalf("Complete with one typed and one voice answer: %v", err)
	}
}

func TestComplete_CoachTurnsGrantNoVoiceCredit(t *testing.T) {
	m, reg, id := newTestSession(t, []string{"Q one?"}, false)
	ctx := context.Background()

	_, err := reg.Mutate(ctx, id, func(s *session.Session) error {
		s.Transcript = append(s.Transcript,
			session.TranscriptEntry{TurnID: "c1", Role: session.RoleCoach, Text: "Q one?", Seq: 1, Final: true},
			session.TranscriptEntry{TurnID: "c2", Role: session.RoleCoach, Text: "Take your time.", Seq: 2, Final: true},
		)
		s.NextSeq = 3
		return nil
	})
	if err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	if _, err := m.Complete(ctx, id); !session.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError when only the coach spoke", err)
	}
}

func TestPracticeAgain_ReuseResetsRunState(t *testing.T) {
	m, reg, id := newTestSession(t, []string{"Q one?", "Q two?"}, true)
	ctx := context.Background()

	_, err := reg.Mutate(ctx, id, func(s *session.Session) error {
		s.Transcript = append(s.Transcript, session.TranscriptEntry{TurnID: "t1", Role: session.RoleCoach, Text: "Q one?", Seq: 1, Final: true})
		s.NextSeq = 2
		return nil
	})
	if err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	first, _ := reg.Snapshot(ctx, id)
	if _, err := m.Complete(ctx, id); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	runID, err := m.PracticeAgain(ctx, id, ModeReuse, nil)
	if err != nil {
		t.Fatalf("PracticeAgain: %v", err)
	}
	if runID == first.ActiveRunID {
		t.Fatal("new run must get a fresh run id")
	}

	snap, _ := reg.Snapshot(ctx, id)
	if snap.Status != session.StatusActive {
		t.Fatalf("Status = %q, want active", snap.Status)
	}
	if len(snap.Answers) != 0 || len(snap.Evaluations) != 0 {
		t.Fatalf("answers/evaluations not reset: %v / %v", snap.Answers, snap.Evaluations)
	}
	if len(snap.Questions) != 2 {
		t.Fatalf("Questions = %d, want unchanged set of 2", len(snap.Questions))
	}
	// Prior transcript stays, but the active run starts a fresh slice.
	if len(snap.Transcript) != 1 {
		t.Fatalf("Transcript = %d entries, want prior entry preserved", len(snap.Transcript))
	}
	if snap.RunStartSeq != snap.NextSeq {
		t.Fatalf("RunStartSeq = %d, want NextSeq %d", snap.RunStartSeq, snap.NextSeq)
	}
	if len(snap.ActiveTranscript()) != 0 {
		t.Fatalf("ActiveTranscript = %v, want empty for new run", snap.ActiveTranscript())
	}
	if len(snap.RunHistory) != 1 {
		t.Fatalf("RunHistory = %d, want previous run preserved", len(snap.RunHistory))
	}
}

func TestPracticeAgain_OnActiveSessionConflicts(t *testing.T) {
	m, _, id := newTestSession(t, []string{"Q?"}, true)

	_, err := m.PracticeAgain(context.Background(), id, ModeReuse, nil)
	if !session.IsConflict(err) {
		t.Fatalf("err = %v, want ConcurrencyConflict", err)
	}
}

func TestPracticeAgain_ConcurrentDuplicateOneWins(t *testing.T) {
	m, _, id := newTestSession(t, []string{"Q?"}, true)
	ctx := context.Background()

	if _, err := m.Complete(ctx, id); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.PracticeAgain(ctx, id, ModeReuse, nil)
		}(i)
	}
	wg.Wait()

	won, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case session.IsConflict(err):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1", won)
	}
	if conflicted != racers-1 {
		t.Fatalf("conflicts = %d, want %d", conflicted, racers-1)
	}
}

func TestPracticeAgain_ExtendAppendsAndDedups(t *testing.T) {
	m, reg, id := newTestSession(t, []string{"Tell me about a project you led."}, true)
	ctx := context.Background()

	if _, err := m.Complete(ctx, id); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err := m.PracticeAgain(ctx, id, ModeExtend, []string{
		"Tell me about a project you led.",   // exact duplicate, dropped
		"tell me about a project you led",    // near-duplicate rephrasing, dropped
		"How do you handle tight deadlines?", // genuinely new
	})
	if err != nil {
		t.Fatalf("PracticeAgain: %v", err)
	}

	snap, _ := reg.Snapshot(ctx, id)
	if len(snap.Questions) != 2 {
		t.Fatalf("Questions = %d, want 2 (duplicates dropped)", len(snap.Questions))
	}
	added := snap.Questions[1]
	if added.Source != session.SourceAdded {
		t.Fatalf("added Source = %q, want added", added.Source)
	}
	if added.Text != "How do you handle tight deadlines?" {
		t.Fatalf("added Text = %q", added.Text)
	}
}

func TestPracticeAgain_ExtendValidation(t *testing.T) {
	tests := []struct {
		name  string
		extra []string
	}{
		{"empty extension", nil},
		{"blank question", []string{"  "}},
		{"all duplicates", []string{"Tell me about a project you led."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, id := newTestSession(t, []string{"Tell me about a project you led."}, true)
			ctx := context.Background()
			if _, err := m.Complete(ctx, id); err != nil {
				t.Fatalf("Complete: %v", err)
			}

			_, err := m.PracticeAgain(ctx, id, ModeExtend, tt.extra)
			if !session.IsValidation(err) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestPracticeAgain_UnknownMode(t *testing.T) {
	m, _, id := newTestSession(t, []string{"Q?"}, true)

	_, err := m.PracticeAgain(context.Background(), id, Mode("restart"), nil)
	if !session.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestHistory_OrderedOldestFirst(t *testing.T) {
	m, reg, id := newTestSession(t, []string{"Q?"}, true)
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }

	if _, err := m.Complete(ctx, id); err != nil {
		t.Fatalf("Complete 1: %v", err)
	}
	if _, err := m.PracticeAgain(ctx, id, ModeReuse, nil); err != nil {
		t.Fatalf("PracticeAgain: %v", err)
	}
	_, err := reg.Mutate(ctx, id, func(s *session.Session) error {
		s.Answers["a"] = "again"
		return nil
	})
	if err != nil {
		t.Fatalf("answer again: %v", err)
	}
	m.now = func() time.Time { return base.Add(time.Minute) }
	if _, err := m.Complete(ctx, id); err != nil {
		t.Fatalf("Complete 2: %v", err)
	}

	hist, err := m.History(ctx, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("len(hist) = %d, want 2", len(hist))
	}
	if !hist[0].CompletedAt.Before(hist[1].CompletedAt) {
		t.Fatalf("history out of order: %v then %v", hist[0].CompletedAt, hist[1].CompletedAt)
	}
	if hist[0].RunID == hist[1].RunID {
		t.Fatal("run ids must differ between runs")
	}
}
