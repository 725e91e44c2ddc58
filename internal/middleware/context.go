package middleware

import "context"

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// GetUserID возвращает user_id из контекста (устанавливается TokenAuth).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetUsername возвращает username из контекста (устанавливается TokenAuth).
func GetUsername(ctx context.Context) string {
	v, _ := ctx.Value(UsernameKey).(string)
	return v
}
