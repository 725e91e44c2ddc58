package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/conversa/internal/logger"
)

// ActivitySink принимает отметки последней активности пользователя.
type ActivitySink interface {
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
}

// ActivityCache обновляет last-seen в быстром кеше. Может быть nil.
type ActivityCache interface {
	Touch(ctx context.Context, userID string, at time.Time) error
}

// TrackActivity отмечает последнюю активность аутентифицированного
// пользователя. Запись идёт в фоне и не задерживает ответ.
func TrackActivity(sink ActivitySink, cache ActivityCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := GetUserID(r.Context()); userID != "" {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					defer cancel()
					now := time.Now().UTC()
					if err := sink.TouchLastActive(ctx, userID, now); err != nil {
						logger.Errorf("track activity user=%s: %v", userID, err)
					}
					if cache != nil {
						if err := cache.Touch(ctx, userID, now); err != nil {
							logger.Debugf("track activity cache user=%s: %v", userID, err)
						}
					}
				}()
			}
			next.ServeHTTP(w, r)
		})
	}
}
