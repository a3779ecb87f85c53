package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Authenticator verifies bearer credentials before mutating handlers run.
type Authenticator struct {
	token string
}

// NewAuthenticator constructs an authenticator for the configured token.
func NewAuthenticator(token string) (*Authenticator, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("bearer token must be configured")
	}
	return &Authenticator{token: trimmed}, nil
}

// Middleware enforces bearer authentication.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil || a.token == "" {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, supplied, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		supplied = strings.TrimSpace(supplied)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(a.token)) != 1 {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
