package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/receipt-ledger/internal/logger"
)

func TestChain_RequestIDAndLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewWithWriter(buf)

	var seenID string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		reqLog := logger.FromContext(r.Context())
		reqLog.Info().Msg("inside handler")
		WriteJSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
	}), Recovery(log), RequestID, Logger(log), CORS)

	req := httptest.NewRequest(http.MethodGet, "/api/ledger", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if seenID != "req-42" || rec.Header().Get(RequestIDHeader) != "req-42" {
		t.Errorf("request id = %q / %q, want req-42", seenID, rec.Header().Get(RequestIDHeader))
	}
	if strings.Count(buf.String(), `"request_id":"req-42"`) != 2 {
		t.Errorf("expected handler and access log lines with the request id, got:\n%s", buf.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

func TestRequestID_Generated(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("generated id = %q, want a uuid", rec.Header().Get(RequestIDHeader))
	}
}

func TestRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	h := Recovery(logger.NewWithWriter(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(buf.String(), "Panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/receipts", nil))

	if rec.Code != http.StatusNoContent || called {
		t.Errorf("preflight status = %d, handler called = %v", rec.Code, called)
	}
}
