package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/alanyoungcy/tradepilot/internal/crypto"
)

// Auth returns middleware that validates API requests using either a Bearer
// token in the Authorization header or a key in the X-API-Key header, checked
// against a bcrypt hash. If apiKeyHash is empty, the middleware passes all
// requests through (disabled). Requests whose path is in public skip the
// check.
func Auth(apiKeyHash string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	v := &verifier{hash: apiKeyHash}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// If no API key is configured, authentication is disabled.
			if apiKeyHash == "" || open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			if !v.check(token) {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// verifier remembers the last token that passed bcrypt so repeat requests
// only pay a constant-time comparison.
type verifier struct {
	hash string
	mu   sync.RWMutex
	last []byte
}

func (v *verifier) check(token string) bool {
	v.mu.RLock()
	last := v.last
	v.mu.RUnlock()
	if last != nil && subtle.ConstantTimeCompare([]byte(token), last) == 1 {
		return true
	}
	if !crypto.CheckAPIKey(v.hash, token) {
		return false
	}
	v.mu.Lock()
	v.last = []byte(token)
	v.mu.Unlock()
	return true
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	// Check Authorization: Bearer <token>
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Check X-API-Key header.
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
