package ws

import (
	"context"
	"time"

	"github.com/conversa/internal/model"
)

// Consumer-side slices of the durable store. The repository types satisfy
// them in production; tests use in-memory fakes.

type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListThreadReplies(ctx context.Context, parentID string, limit int) ([]model.Message, error)
	// Conditional updates: false with nil error means zero rows matched, the
	// uniform signal for "not yours or not there".
	UpdateContentIfSender(ctx context.Context, id, senderID, content string, editedAt time.Time) (bool, error)
	SoftDeleteIfSender(ctx context.Context, id, senderID string) (bool, error)
}

type ConversationStore interface {
	SetLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error
	IncrementUnread(ctx context.Context, conversationID, exceptUserID string) error
	ResetUnread(ctx context.Context, conversationID, userID string) error
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
}

type ReactionStore interface {
	Get(ctx context.Context, messageID, userID string) (*model.Reaction, error)
	Set(ctx context.Context, messageID, userID, value string) error
	Delete(ctx context.Context, messageID, userID string) error
	ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error)
}

type ReceiptStore interface {
	InsertMissing(ctx context.Context, conversationID, userID string) (int64, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	SetPresence(ctx context.Context, userID string, status model.PresenceStatus, at time.Time) error
}

// PresenceCache mirrors presence transitions into the fast cache.
// Best-effort; nil disables it.
type PresenceCache interface {
	SetStatus(ctx context.Context, userID string, status model.PresenceStatus, lastSeen time.Time) error
}

// PushNotifier sends push notifications. Nil disables pushes.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}
