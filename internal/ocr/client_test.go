package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/dvloznov/receipt-ledger/internal/extractor"
)

func newTestServer(t *testing.T, statuses []string) *httptest.Server {
	t.Helper()
	var polls int
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(subscriptionKeyHeader) != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":analyze"):
			body, _ := io.ReadAll(r.Body)
			if string(body) != "jpeg-bytes" || r.Header.Get("Content-Type") != "image/jpeg" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if r.URL.Query().Get("api-version") != DefaultAPIVersion {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Operation-Location", srv.URL+"/operations/42")
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/operations/42":
			status := statuses[len(statuses)-1]
			if polls < len(statuses) {
				status = statuses[polls]
			}
			polls++
			if code, err := strconv.Atoi(status); err == nil {
				w.WriteHeader(code)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"status":"`+status+`","analyzeResult":{"content":"LAWSON\n150"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SubmitAndPoll(t *testing.T) {
	srv := newTestServer(t, []string{"running", "succeeded"})
	c := NewClient(srv.Client(), Config{Endpoint: srv.URL + "/", APIKey: "secret"}, nil)
	ctx := context.Background()

	handle, err := c.Submit(ctx, []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if handle != srv.URL+"/operations/42" {
		t.Fatalf("Submit() handle = %q", handle)
	}

	first, err := c.Poll(ctx, handle)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if first.State != extractor.OCRPending {
		t.Errorf("first poll state = %q, want pending", first.State)
	}

	second, err := c.Poll(ctx, handle)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if second.State != extractor.OCRDone || second.Text != "LAWSON\n150" {
		t.Errorf("second poll = %+v, want done with content", second)
	}
}

func TestClient_PollFailed(t *testing.T) {
	srv := newTestServer(t, []string{"failed"})
	c := NewClient(srv.Client(), Config{Endpoint: srv.URL, APIKey: "secret"}, nil)

	st, err := c.Poll(context.Background(), srv.URL+"/operations/42")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if st.State != extractor.OCRFailed {
		t.Errorf("state = %q, want failed", st.State)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := newTestServer(t, []string{"running"})
	c := NewClient(srv.Client(), Config{Endpoint: srv.URL, APIKey: "wrong"}, nil)

	if _, err := c.Submit(context.Background(), []byte("jpeg-bytes"), "image/jpeg"); err == nil {
		t.Error("Submit() with bad key should fail")
	}
	if _, err := c.Poll(context.Background(), srv.URL+"/operations/42"); err == nil {
		t.Error("Poll() with bad key should fail")
	}
}

func TestClient_WorksWithExtractor(t *testing.T) {
	srv := newTestServer(t, []string{"notStarted", "running", "succeeded"})
	c := NewClient(srv.Client(), Config{Endpoint: srv.URL, APIKey: "secret"}, nil)

	ex := extractor.New(c, nil, extractor.Options{MaxAttempts: 5})
	text, err := ex.ExtractText(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "LAWSON\n150" {
		t.Errorf("ExtractText() = %q", text)
	}
}

func TestClient_PollTransientStatusIsPending(t *testing.T) {
	srv := newTestServer(t, []string{"429", "503", "succeeded"})
	c := NewClient(srv.Client(), Config{Endpoint: srv.URL, APIKey: "secret"}, nil)
	ctx := context.Background()
	handle := srv.URL + "/operations/42"

	for _, want := range []string{"429", "503"} {
		st, err := c.Poll(ctx, handle)
		if err != nil {
			t.Fatalf("Poll() on %s error = %v", want, err)
		}
		if st.State != extractor.OCRPending {
			t.Errorf("Poll() on %s state = %q, want pending", want, st.State)
		}
	}

	st, err := c.Poll(ctx, handle)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if st.State != extractor.OCRDone {
		t.Errorf("state = %q, want done", st.State)
	}
}

func TestClient_PollNotFoundIsTerminal(t *testing.T) {
	srv := newTestServer(t, []string{"404"})
	c := NewClient(srv.Client(), Config{Endpoint: srv.URL, APIKey: "secret"}, nil)

	if _, err := c.Poll(context.Background(), srv.URL+"/operations/42"); err == nil {
		t.Error("Poll() on 404 should fail")
	}
}

func TestClient_ExtractorRidesOutThrottling(t *testing.T) {
	srv := newTestServer(t, []string{"running", "429", "502", "succeeded"})
	c := NewClient(srv.Client(), Config{Endpoint: srv.URL, APIKey: "secret"}, nil)

	ex := extractor.New(c, nil, extractor.Options{MaxAttempts: 6})
	text, err := ex.ExtractText(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "LAWSON\n150" {
		t.Errorf("ExtractText() = %q", text)
	}
}
