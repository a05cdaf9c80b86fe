package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prepdeck/prepdeck/internal/observe"
	"github.com/prepdeck/prepdeck/internal/session"
)

// errorBody is the JSON error envelope returned by every failing endpoint.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

// writeJSON encodes v with the given status. On encoding failure it falls
// back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

// writeError maps domain errors to HTTP status codes:
//
//	ValidationError     → 422
//	ConcurrencyConflict → 409
//	ErrNotFound         → 404
//	MigrationError      → 500 (the record exists but is unusable)
//
// Anything else is a 500 with the detail kept out of the response body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *session.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Reason, Kind: "validation", Field: ve.Field})
		return
	}

	var cc *session.ConcurrencyConflict
	if errors.As(err, &cc) {
		writeJSON(w, http.StatusConflict, errorBody{Error: cc.Error(), Kind: "conflict"})
		return
	}

	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found", Kind: "not_found"})
		return
	}

	if session.IsMigration(err) {
		observe.Logger(r.Context()).Error("request hit unmigratable session record", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "session record is unusable", Kind: "migration"})
		return
	}

	observe.Logger(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Kind: "internal"})
}

// decodeBody strictly decodes the request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return session.Validationf("body", "malformed request body: %v", err)
	}
	return nil
}
