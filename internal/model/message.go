package model

import "time"

type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeImage ContentType = "IMAGE"
	ContentTypeVideo ContentType = "VIDEO"
	ContentTypeFile  ContentType = "FILE"
)

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeVideo, ContentTypeFile:
		return true
	}
	return false
}

// Message identity is immutable after creation: edits set EditedAt and
// broadcast an updated variant of the same id. Seq is monotonic within a
// conversation and defines delivery order.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`
	ParentID       *string     `json:"parent_id,omitempty"`
	Seq            int64       `json:"seq"`
	EditedAt       *time.Time  `json:"edited_at,omitempty"`
	IsDeleted      bool        `json:"is_deleted"`
	CreatedAt      time.Time   `json:"created_at"`
	Sender         *UserPublic `json:"sender,omitempty"`
	Parent         *Message    `json:"parent,omitempty"`
	Reactions      []Reaction  `json:"reactions,omitempty"`
}

// Reaction: at most one per (message, identity). Re-submitting the same value
// toggles it off; a different value replaces it.
type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Value     string    `json:"value"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReadReceipt records that an identity observed a message. Never created for
// the sender; duplicate marks are no-ops.
type ReadReceipt struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}
