// Package httpapi exposes the coaching operations over a JSON HTTP API.
//
// The handlers are thin: request decoding, a single call into the owning
// component, and uniform error mapping. All domain rules live behind the
// registry, the orchestrator, the settings guard, and the run manager.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prepdeck/prepdeck/internal/agent"
	"github.com/prepdeck/prepdeck/internal/run"
	"github.com/prepdeck/prepdeck/internal/session"
	"github.com/prepdeck/prepdeck/internal/settings"
	"github.com/prepdeck/prepdeck/internal/transcript"
)

// VoiceController starts and stops the realtime voice connection for a
// session. Implemented by the app's voice bridge.
type VoiceController interface {
	StartVoice(ctx context.Context, sessionID string) error
	StopVoice(ctx context.Context, sessionID string) error
}

// API bundles the handlers for every coaching operation.
type API struct {
	reg   *session.Registry
	orch  *agent.Orchestrator
	guard *settings.Guard
	runs  *run.Manager
	sync  *transcript.Synchronizer
	voice VoiceController
}

// New creates the API over its collaborators. voice may be nil when no
// realtime provider is configured; the voice endpoints then return 422.
func New(reg *session.Registry, orch *agent.Orchestrator, guard *settings.Guard, runs *run.Manager, sync *transcript.Synchronizer, voice VoiceController) *API {
	return &API{reg: reg, orch: orch, guard: guard, runs: runs, sync: sync, voice: voice}
}

// Register adds all API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", a.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", a.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", a.closeSession)

	mux.HandleFunc("POST /v1/sessions/{id}/questions", a.generateQuestions)
	mux.HandleFunc("POST /v1/sessions/{id}/questions/{qid}/example", a.generateExample)
	mux.HandleFunc("POST /v1/sessions/{id}/questions/{qid}/answer", a.evaluateAnswer)

	mux.HandleFunc("GET /v1/sessions/{id}/settings", a.getSettings)
	mux.HandleFunc("PATCH /v1/sessions/{id}/settings", a.updateSettings)
	mux.HandleFunc("GET /v1/settings/matrix", a.getMatrix)

	mux.HandleFunc("POST /v1/sessions/{id}/complete", a.completeRun)
	mux.HandleFunc("POST /v1/sessions/{id}/practice-again", a.practiceAgain)
	mux.HandleFunc("GET /v1/sessions/{id}/runs", a.runHistory)

	mux.HandleFunc("GET /v1/sessions/{id}/transcript", a.getTranscript)
	mux.HandleFunc("POST /v1/sessions/{id}/events", a.ingestEvent)

	mux.HandleFunc("POST /v1/sessions/{id}/voice/start", a.startVoice)
	mux.HandleFunc("POST /v1/sessions/{id}/voice/stop", a.stopVoice)
}

// ── Sessions ───────────────────────────────────────────────────────────────────

type createSessionRequest struct {
	// Topic seeds initial question generation. Optional.
	Topic string `json:"topic,omitempty"`

	// Questions is how many questions to generate up front. Zero skips
	// generation; questions can be added later.
	Questions int `json:"questions,omitempty"`
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Questions < 0 {
		writeError(w, r, session.Validationf("questions", "must not be negative"))
		return
	}

	snap, err := a.reg.Create(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.Questions > 0 {
		if _, err := a.orch.GenerateQuestions(r.Context(), snap.ID, req.Topic, req.Questions); err != nil {
			writeError(w, r, err)
			return
		}
		snap, err = a.reg.Snapshot(r.Context(), snap.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := a.reg.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := a.reg.Close(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Questions ──────────────────────────────────────────────────────────────────

type generateQuestionsRequest struct {
	Topic string `json:"topic,omitempty"`
	Count int    `json:"count"`
}

func (a *API) generateQuestions(w http.ResponseWriter, r *http.Request) {
	var req generateQuestionsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	qs, err := a.orch.GenerateQuestions(r.Context(), r.PathValue("id"), req.Topic, req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

func (a *API) generateExample(w http.ResponseWriter, r *http.Request) {
	example, err := a.orch.GenerateExample(r.Context(), r.PathValue("id"), r.PathValue("qid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"example": example})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

func (a *API) evaluateAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	eval, err := a.orch.EvaluateAnswer(r.Context(), r.PathValue("id"), r.PathValue("qid"), req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// ── Settings ───────────────────────────────────────────────────────────────────

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	cur, err := a.guard.Current(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (a *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	var upd settings.Update
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, r, err)
		return
	}

	installed, err := a.guard.Apply(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, installed)
}

func (a *API) getMatrix(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": settings.Models(),
		"voices": settings.Voices(),
	})
}

// ── Runs ───────────────────────────────────────────────────────────────────────

func (a *API) completeRun(w http.ResponseWriter, r *http.Request) {
	frozen, err := a.runs.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, frozen)
}

type practiceAgainRequest struct {
	Mode           run.Mode `json:"mode"`
	ExtraQuestions []string `json:"extra_questions,omitempty"`
}

func (a *API) practiceAgain(w http.ResponseWriter, r *http.Request) {
	var req practiceAgainRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	runID, err := a.runs.PracticeAgain(r.Context(), r.PathValue("id"), req.Mode, req.ExtraQuestions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID})
}

func (a *API) runHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := a.runs.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": hist})
}

// ── Transcript ─────────────────────────────────────────────────────────────────

func (a *API) getTranscript(w http.ResponseWriter, r *http.Request) {
	snap, err := a.reg.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	active := snap.ActiveTranscript()
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": active,
		"views":   transcript.Views(active),
	})
}

type eventRequest struct {
	Role       session.Role `json:"role"`
	TurnID     string       `json:"turn_id"`
	Text       string       `json:"text"`
	Final      bool         `json:"final"`
	ProviderTS time.Time    `json:"provider_ts,omitempty"`
}

func (a *API) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	_, disp, err := a.sync.Ingest(r.Context(), r.PathValue("id"), transcript.Event{
		Role:       req.Role,
		TurnID:     req.TurnID,
		Text:       req.Text,
		Final:      req.Final,
		ProviderTS: req.ProviderTS,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"disposition": string(disp)})
}

// ── Voice ──────────────────────────────────────────────────────────────────────

func (a *API) startVoice(w http.ResponseWriter, r *http.Request) {
	if a.voice == nil {
		writeError(w, r, session.Validationf("voice", "no realtime provider configured"))
		return
	}
	if err := a.voice.StartVoice(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) stopVoice(w http.ResponseWriter, r *http.Request) {
	if a.voice == nil {
		writeError(w, r, session.Validationf("voice", "no realtime provider configured"))
		return
	}
	if err := a.voice.StopVoice(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
