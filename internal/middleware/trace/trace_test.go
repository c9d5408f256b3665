package trace

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"spendwise/internal/log"
)

func newTestMiddleware(buf *bytes.Buffer) *Middleware {
	cfg := log.DefaultConfig()
	cfg.JSON = true
	cfg.Output = buf
	return NewMiddleware(log.New(cfg), func(*http.Request) string { return "198.51.100.1" })
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMiddleware(&buf)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		log.FromContext(r.Context()).InfoContext(r.Context(), "inside handler")
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/ingest/transactions", nil))

	if !strings.HasPrefix(seen, "req_") || rr.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("request id %q, header %q", seen, rr.Header().Get(HeaderRequestID))
	}

	var sawHandler, sawEnd bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if entry[log.FieldRequestID] != seen {
			t.Errorf("log line without request id: %s", line)
		}
		switch entry["msg"] {
		case "inside handler":
			sawHandler = true
		case "HTTP request completed":
			sawEnd = true
			if entry[log.FieldStatusCode] != float64(http.StatusCreated) || entry[log.FieldClientIP] != "198.51.100.1" {
				t.Errorf("completion entry = %v", entry)
			}
		}
	}
	if !sawHandler || !sawEnd {
		t.Fatalf("missing log lines:\n%s", buf.String())
	}
	if got := m.GetMetrics(); got.TotalRequests != 1 {
		t.Fatalf("metrics = %+v", got)
	}
}

func TestMiddlewareKeepsValidIncomingID(t *testing.T) {
	var buf bytes.Buffer
	h := newTestMiddleware(&buf).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for in, keep := range map[string]bool{"abc-123": true, "bad id with spaces": false, strings.Repeat("x", 65): false} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(HeaderRequestID, in)
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get(HeaderRequestID); (got == in) != keep {
			t.Errorf("incoming %q -> %q", in, got)
		}
	}
}
