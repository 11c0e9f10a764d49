package httpapi

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"qfree/queue-service/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack keep SockJS streaming and websocket transports working
// behind the middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	w.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// LoggingMiddleware assigns a request id when the caller sent none, then logs
// and counts every request.
func LoggingMiddleware(logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := requestIDFromRequest(r)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		duration := time.Since(start)

		metrics.ObserveRequest(r.Method, routeLabel(r.URL.Path), writer.status, duration)
		entry := logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": duration.Milliseconds(),
			"request_id":  requestID,
		})
		if writer.status >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Info("request")
	})
}

const otherRoute = "/other"

var (
	queueActions    = map[string]bool{"join": true, "leave": true, "call-next": true, "wait-time": true}
	locationActions = map[string]bool{"staff": true, "staff-assignments": true}
)

// routeLabel maps a path onto one of the known route shapes, with ids
// collapsed. Anything else is counted as /other so metric labels stay bounded.
func routeLabel(path string) string {
	if path == "/healthz" || path == "/metrics" {
		return path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "realtime" {
		return "/realtime"
	}
	if len(parts) < 2 || parts[0] != "api" {
		return otherRoute
	}

	rest := parts[2:]
	switch parts[1] {
	case "queues":
		switch {
		case len(rest) == 0:
			return "/api/queues"
		case len(rest) == 1:
			return "/api/queues/{id}"
		case len(rest) == 2 && queueActions[rest[1]]:
			return "/api/queues/{id}/" + rest[1]
		case len(rest) == 3 && rest[1] == "people":
			return "/api/queues/{id}/people/{id}"
		}
	case "users":
		if len(rest) == 2 && rest[1] == "queue" {
			return "/api/users/{id}/queue"
		}
	case "locations":
		switch {
		case len(rest) == 0:
			return "/api/locations"
		case len(rest) == 1:
			return "/api/locations/{id}"
		case len(rest) == 2 && locationActions[rest[1]]:
			return "/api/locations/{id}/" + rest[1]
		}
	case "events":
		if len(rest) == 0 {
			return "/api/events"
		}
	}
	return otherRoute
}
