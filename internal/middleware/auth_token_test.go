package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conversa/internal/auth"
)

func authedProbe(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var seen string
	verifier := auth.NewVerifier("test-secret")
	h := TokenAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &seen
}

func signToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewVerifier("test-secret").Sign(auth.Identity{UserID: "u1", Username: "alice"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return token
}

func TestTokenAuthBearerHeader(t *testing.T) {
	h, seen := authedProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if *seen != "u1" {
		t.Fatalf("want user id in context, got %q", *seen)
	}
}

func TestTokenAuthQueryParam(t *testing.T) {
	h, seen := authedProbe(t)
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+signToken(t), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if *seen != "u1" {
		t.Fatalf("want user id in context, got %q", *seen)
	}
}

func TestTokenAuthRejects(t *testing.T) {
	h, seen := authedProbe(t)
	for _, header := range []string{"", "Bearer bogus", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: want 401, got %d", header, rec.Code)
		}
	}
	if *seen != "" {
		t.Fatalf("handler must not run without a valid token, saw %q", *seen)
	}
}
