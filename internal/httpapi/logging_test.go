package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"qfree/queue-service/internal/logging"
)

func TestLoggingMiddlewareAssignsRequestID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromRequest(r)
		w.WriteHeader(http.StatusTeapot)
	})
	var out bytes.Buffer
	handler := LoggingMiddleware(logging.NewWithOutput("info", &out), next)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/queues/q1", nil))

	if seen == "" {
		t.Fatalf("expected generated request id to reach the handler")
	}
	if got := resp.Header().Get("X-Request-ID"); got != seen {
		t.Fatalf("expected response id %q, got %q", seen, got)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", out.String(), err)
	}
	if entry["request_id"] != seen || entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestLoggingMiddlewareKeepsCallerRequestID(t *testing.T) {
	handler := LoggingMiddleware(logging.Discard(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if got := resp.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected caller request id, got %q", got)
	}
}
