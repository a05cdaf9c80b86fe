package settings

import (
	"context"
	"testing"

	"github.com/prepdeck/prepdeck/internal/session"
	"github.com/prepdeck/prepdeck/pkg/store"
)

func newTestGuard(t *testing.T) (*Guard, *session.Registry, string) {
	t.Helper()
	reg := session.NewRegistry(store.NewMemStore())
	created, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return NewGuard(reg), reg, created.ID
}

func strPtr(s string) *string { return &s }

func effortPtr(e session.Effort) *session.Effort { return &e }

func verbPtr(v session.Verbosity) *session.Verbosity { return &v }

func TestValidate_Matrix(t *testing.T) {
	tests := []struct {
		name    string
		s       session.AgentSettings
		wantErr bool
	}{
		{"defaults are approved", session.DefaultSettings(), false},
		{"gpt-5 high/high", session.AgentSettings{ModelID: "gpt-5", Effort: session.EffortHigh, Verbosity: session.VerbosityHigh, VoiceID: "sage"}, false},
		{"o4-mini high/low", session.AgentSettings{ModelID: "o4-mini", Effort: session.EffortHigh, Verbosity: session.VerbosityLow, VoiceID: "alloy"}, false},
		{"unapproved model", session.AgentSettings{ModelID: "gpt-3.5-turbo", Effort: session.EffortMedium, Verbosity: session.VerbosityMedium, VoiceID: "alloy"}, true},
		{"gpt-5-mini rejects high effort", session.AgentSettings{ModelID: "gpt-5-mini", Effort: session.EffortHigh, Verbosity: session.VerbosityLow, VoiceID: "alloy"}, true},
		{"gpt-5-mini rejects high verbosity", session.AgentSettings{ModelID: "gpt-5-mini", Effort: session.EffortMedium, Verbosity: session.VerbosityHigh, VoiceID: "alloy"}, true},
		{"o4-mini rejects high verbosity", session.AgentSettings{ModelID: "o4-mini", Effort: session.EffortMedium, Verbosity: session.VerbosityHigh, VoiceID: "alloy"}, true},
		{"unknown voice", session.AgentSettings{ModelID: "gpt-5", Effort: session.EffortMedium, Verbosity: session.VerbosityMedium, VoiceID: "hal9000"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.s)
			if tt.wantErr && !session.IsValidation(err) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestApply_InstallsNewSnapshot(t *testing.T) {
	g, reg, id := newTestGuard(t)
	ctx := context.Background()

	installed, err := g.Apply(ctx, id, Update{
		Effort:  effortPtr(session.EffortHigh),
		VoiceID: strPtr("sage"),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if installed.SnapshotID != "set-1" {
		t.Fatalf("SnapshotID = %q, want set-1", installed.SnapshotID)
	}
	if installed.Effort != session.EffortHigh || installed.VoiceID != "sage" {
		t.Fatalf("installed = %+v, want merged values", installed)
	}
	// Unspecified fields keep the prior values.
	if installed.ModelID != session.DefaultModelID || installed.Verbosity != session.DefaultVerbosity {
		t.Fatalf("installed = %+v, want untouched model and verbosity", installed)
	}

	snap, _ := reg.Snapshot(ctx, id)
	if snap.Settings != installed {
		t.Fatalf("session settings = %+v, want installed snapshot", snap.Settings)
	}

	// Each accepted change mints the next id in order.
	second, err := g.Apply(ctx, id, Update{Verbosity: verbPtr(session.VerbosityLow)})
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if second.SnapshotID != "set-2" {
		t.Fatalf("SnapshotID = %q, want set-2", second.SnapshotID)
	}
}

func TestApply_RejectedUpdateLeavesSettingsUntouched(t *testing.T) {
	g, reg, id := newTestGuard(t)
	ctx := context.Background()

	// Switching to gpt-5-mini while verbosity stays at the default "medium"
	// is valid, but requesting high verbosity with it is not. The merged
	// result is validated as a whole.
	_, err := g.Apply(ctx, id, Update{
		ModelID:   strPtr("gpt-5-mini"),
		Verbosity: verbPtr(session.VerbosityHigh),
	})
	if !session.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	snap, _ := reg.Snapshot(ctx, id)
	if snap.Settings != session.DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults after rejected update", snap.Settings)
	}
	if snap.SettingsSeq != 0 {
		t.Fatalf("SettingsSeq = %d, want 0 (no snapshot minted)", snap.SettingsSeq)
	}
}

func TestApply_EmptyUpdateRejected(t *testing.T) {
	g, _, id := newTestGuard(t)

	_, err := g.Apply(context.Background(), id, Update{})
	if !session.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestApply_CrossModelDowngradeMustBeExplicit(t *testing.T) {
	g, _, id := newTestGuard(t)
	ctx := context.Background()

	// Raise effort on gpt-5 first.
	if _, err := g.Apply(ctx, id, Update{Effort: effortPtr(session.EffortHigh)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Moving to gpt-5-mini alone must fail: the carried-over high effort is
	// outside its matrix. No silent coercion.
	if _, err := g.Apply(ctx, id, Update{ModelID: strPtr("gpt-5-mini")}); !session.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	// Supplying the full consistent combination succeeds.
	installed, err := g.Apply(ctx, id, Update{
		ModelID:   strPtr("gpt-5-mini"),
		Effort:    effortPtr(session.EffortMedium),
		Verbosity: verbPtr(session.VerbosityLow),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if installed.SnapshotID != "set-2" {
		t.Fatalf("SnapshotID = %q, want set-2", installed.SnapshotID)
	}
}

func TestModelsAndVoices_ReturnCopies(t *testing.T) {
	ms := Models()
	ms[0].ID = "mutated"
	if Models()[0].ID == "mutated" {
		t.Fatal("Models() leaked internal slice")
	}

	vs := Voices()
	vs[0] = "mutated"
	if Voices()[0] == "mutated" {
		t.Fatal("Voices() leaked internal slice")
	}
}
