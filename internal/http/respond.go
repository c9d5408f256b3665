package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"spendwise/internal/core"
	"spendwise/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.ErrValidation:
		return http.StatusUnprocessableEntity
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrNetwork:
		return http.StatusServiceUnavailable
	case core.ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it as {"error": ...}. Internal errors are
// not echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusFor(err)
	sl := log.NewStructuredLogger(log.FromContext(r.Context()))
	sl.LogError(r.Context(), "Request failed", err, operation, log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))

	body := errorBody{Error: err.Error(), Kind: log.ErrorType(err)}
	if status == http.StatusInternalServerError {
		body = errorBody{Error: "internal error"}
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a single JSON value of at most maxJSONBody bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return core.Validation(op, fmt.Errorf("unsupported content type %q", ct))
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.Validation(op, fmt.Errorf("request body larger than %d bytes", maxErr.Limit))
		}
		return core.Validation(op, fmt.Errorf("invalid JSON body: %w", err))
	}
	if dec.More() {
		return core.Validation(op, errors.New("request body must contain a single JSON value"))
	}
	return nil
}

// sanitizeInput trims and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// intQuery reads an integer query parameter within [lo, hi]. A missing
// parameter yields def.
func intQuery(r *http.Request, op, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, core.Validation(op, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi))
	}
	return n, nil
}
