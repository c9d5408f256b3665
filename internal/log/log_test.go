package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"spendwise/internal/core"
)

func newBufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{Level: slog.LevelDebug, Component: component, JSON: true, Output: buf})
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return rec
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, ComponentSession)
	l.Info("hello")
	if got := lastRecord(t, &buf)[FieldComponent]; got != ComponentSession {
		t.Fatalf("component = %v", got)
	}

	buf.Reset()
	l.With(FieldRequestID, "req_1").WithComponent(ComponentHTTP).Info("switched")
	if n := strings.Count(buf.String(), `"component"`); n != 1 {
		t.Fatalf("component should appear once, got %d in %s", n, buf.String())
	}
	if got := lastRecord(t, &buf)[FieldComponent]; got != ComponentHTTP {
		t.Fatalf("component = %v", got)
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{core.Validation("op", errors.New("bad")), ErrorTypeValidation},
		{fmt.Errorf("wrapped: %w", core.NotFound("op", nil)), ErrorTypeNotFound},
		{core.Network("op", nil), ErrorTypeNetwork},
		{core.Upstream("op", nil), ErrorTypeUpstream},
		{context.DeadlineExceeded, ErrorTypeTimeout},
		{errors.New("boom"), ErrorTypeInternal},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestMiddlewareCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, ComponentApp)

	h := Middleware(l)(ComponentMiddleware(ComponentHTTP)(RequestIDMiddleware(func(*http.Request) string { return "req_42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		}))))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := lastRecord(t, &buf)
	if rec[FieldComponent] != ComponentHTTP || rec[FieldRequestID] != "req_42" {
		t.Fatalf("record = %v", rec)
	}
}

func TestFromContextFallback(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("fallback logger = %+v", l)
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, ComponentSession))
	ctx := context.Background()

	sl.LogError(ctx, "update failed", core.NotFound("ledger.update", nil), OpUpdate, nil)
	if rec := lastRecord(t, &buf); rec["level"] != "WARN" || rec[FieldErrorType] != ErrorTypeNotFound {
		t.Fatalf("record = %v", rec)
	}

	sl.LogError(ctx, "sync failed", core.Network("gateway", nil), OpRefresh, NewFields().WithRequestID("r"))
	if rec := lastRecord(t, &buf); rec["level"] != "ERROR" || rec[FieldOperation] != OpRefresh {
		t.Fatalf("record = %v", rec)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/transactions", nil)
	sl.LogHTTPEnd(ctx, req, http.StatusBadGateway, 12, "127.0.0.1")
	if rec := lastRecord(t, &buf); rec["level"] != "ERROR" || rec[FieldStatusCode] != float64(502) {
		t.Fatalf("record = %v", rec)
	}
}
