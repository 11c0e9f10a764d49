package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenLimiterRefills(t *testing.T) {
	limiter := newTokenLimiter(60, 2)
	now := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.allow("k") || !limiter.allow("k") {
		t.Fatalf("expected burst of 2 to pass")
	}
	if limiter.allow("k") {
		t.Fatalf("expected third request to be limited")
	}
	if !limiter.allow("other") {
		t.Fatalf("expected separate key to have its own bucket")
	}

	now = now.Add(time.Second)
	if !limiter.allow("k") {
		t.Fatalf("expected one token after a second at 60/min")
	}
}

func TestRateLimiterPerUser(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 6000, IPBurst: 100, UserPerMinute: 1, UserBurst: 1})
	var seen []byte
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(next)

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/queues/q1/join", bytes.NewBufferString(`{"name":"Bob","userId":"U1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send("10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if string(seen) != `{"name":"Bob","userId":"U1"}` {
		t.Fatalf("body not restored for handler: %q", seen)
	}
	if code := send("10.0.0.2:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("expected same user from another ip to be limited, got %d", code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded client, got %q", got)
	}
}

func TestTokenLimiterSweepsIdleBuckets(t *testing.T) {
	limiter := newTokenLimiter(60, 5)
	now := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.allow("a")
	limiter.allow("b")
	now = now.Add(2 * time.Minute)
	limiter.allow("c")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.buckets) != 1 {
		t.Fatalf("expected idle buckets swept, have %d", len(limiter.buckets))
	}
}
