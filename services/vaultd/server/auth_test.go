package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewAuthenticatorRequiresToken(t *testing.T) {
	if _, err := NewAuthenticator("   "); err == nil {
		t.Fatalf("expected error for blank token")
	}
}

func TestAuthenticatorMiddleware(t *testing.T) {
	auth, err := NewAuthenticator("secret")
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer secret", http.StatusNoContent},
		{"case-insensitive scheme", "bearer secret", http.StatusNoContent},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
