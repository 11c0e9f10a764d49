package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAdmin gates staff-only endpoints behind the configured API key. With
// no key configured every caller is treated as staff.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.adminKey == "" {
		return true
	}
	provided := adminKeyFromRequest(r)
	if provided == "" {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing admin key")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminKey)) != 1 {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "invalid admin key")
		return false
	}
	return true
}

func adminKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-Admin-Key")); key != "" {
		return key
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
