package storage

import (
	"context"
	"time"

	"github.com/conversa/internal/model"
)

// PresenceCache — быстрый кеш статусов присутствия и last-seen, чтобы API и
// fanout не ходили за ними в Postgres. Реализации: redis.Client,
// memory.Client (для -dev без Redis). Кеш не является источником истины:
// им остаётся присутствие в памяти hub'а.
type PresenceCache interface {
	SetStatus(ctx context.Context, userID string, status model.PresenceStatus, lastSeen time.Time) error
	GetStatus(ctx context.Context, userID string) (model.PresenceStatus, time.Time, error)
	Touch(ctx context.Context, userID string, at time.Time) error
	Close() error
}
