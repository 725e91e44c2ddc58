package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/conversa/internal/auth"
)

// TokenAuth проверяет Bearer-токен и кладёт identity в контекст.
// Для WebSocket-хендшейка браузер не может выставить заголовок, поэтому
// токен также принимается через query-параметр ?token=.
func TokenAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			id, err := verifier.Verify(token)
			if err != nil {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, id.UserID)
			ctx = context.WithValue(ctx, UsernameKey, id.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
