package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_PassesThroughStatusAndBody(t *testing.T) {
	m := DefaultMetrics()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("brewing"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
	if rec.Body.String() != "brewing" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestMiddleware_DefaultStatusIs200(t *testing.T) {
	m := DefaultMetrics()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLogger_FallsBackToDefault(t *testing.T) {
	if Logger(httptest.NewRequest(http.MethodGet, "/", nil).Context()) == nil {
		t.Fatal("Logger returned nil")
	}
}
