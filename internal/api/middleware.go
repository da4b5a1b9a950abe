package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// AdminGuard protects operator endpoints with a static API key.
// An empty key leaves the endpoints open.
type AdminGuard struct {
	key string
}

// NewAdminGuard creates new admin middleware
func NewAdminGuard(key string) *AdminGuard {
	return &AdminGuard{key: key}
}

// Require verifies the API key from the Authorization or X-API-Key header.
// Supports formats: "Bearer xxx" or "xxx" in Authorization.
func (g *AdminGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.key == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := extractAPIKey(r)
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, "missing_api_key",
				"provide Authorization header with Bearer token or X-API-Key header")
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(g.key)) != 1 {
			slog.Warn("invalid admin key attempt", "key_prefix", maskKey(apiKey), "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "invalid_api_key", "the provided api key is not valid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractAPIKey extracts API key from request headers
func extractAPIKey(r *http.Request) string {
	// Try Authorization header first
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Handle "Bearer xxx" format
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		// Handle raw key in Authorization header
		return authHeader
	}

	// Fallback to X-API-Key header
	return r.Header.Get("X-API-Key")
}

// maskKey returns first 8 chars of key for safe logging
func maskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
