package model

import "time"

// Conversation is a persisted chat (private pair or named group). Transient
// room subscriptions in the ws package reference conversations by id only.
type Conversation struct {
	ID            string        `json:"id"`
	Name          string        `json:"name,omitempty"`
	IsGroup       bool          `json:"is_group"`
	InviteCode    string        `json:"invite_code,omitempty"`
	GroupImage    string        `json:"group_image,omitempty"`
	LastMessageID *string       `json:"last_message_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Participants  []Participant `json:"participants,omitempty"`
	LastMessage   *Message      `json:"last_message,omitempty"`
}

// Participant links an identity to a conversation and carries its unread
// counter, incremented on fanout and reset by readMessages.
type Participant struct {
	ConversationID string      `json:"conversation_id"`
	UserID         string      `json:"user_id"`
	IsAdmin        bool        `json:"is_admin"`
	UnreadCount    int         `json:"unread_count"`
	JoinedAt       time.Time   `json:"joined_at"`
	User           *UserPublic `json:"user,omitempty"`
}

// PushSubscription is a browser push endpoint for an identity. Pruned when
// the push service reports the endpoint gone.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}
