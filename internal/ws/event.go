package ws

import (
	"fmt"
	"time"

	"github.com/conversa/internal/model"
)

type EventType string

// Inbound event types.
const (
	EventJoinRooms        EventType = "joinRooms"
	EventLeaveRoom        EventType = "leaveRoom"
	EventSetPresence      EventType = "setPresence"
	EventTyping           EventType = "typing"
	EventSendMessage      EventType = "sendMessage"
	EventEditMessage      EventType = "editMessage"
	EventDeleteMessage    EventType = "deleteMessage"
	EventReactToMessage   EventType = "reactToMessage"
	EventReadMessages     EventType = "readMessages"
	EventGetThreadReplies EventType = "getThreadReplies"
)

// Outbound event types.
const (
	EventPresenceUpdate        EventType = "presenceUpdate"
	EventTypingUpdate          EventType = "typingUpdate"
	EventNewMessage            EventType = "newMessage"
	EventNewThreadReply        EventType = "newThreadReply"
	EventMessageUpdated        EventType = "messageUpdated"
	EventMessageDeleted        EventType = "messageDeleted"
	EventMessageReactionUpdate EventType = "messageReactionUpdate"
	EventMessagesRead          EventType = "messagesRead"
	EventThreadReplies         EventType = "threadReplies"
	EventParticipantAdded      EventType = "participantAdded"
	EventParticipantRemoved    EventType = "participantRemoved"
	EventError                 EventType = "error"
)

// Error codes carried in ErrorPayload. Ownership and existence failures share
// one code so a caller cannot probe for foreign message ids.
const (
	ErrCodeValidation          = "validation"
	ErrCodePersistence         = "persistence"
	ErrCodeForbiddenOrNotFound = "forbidden_or_not_found"
)

// IncomingEvent is the envelope clients send. Fields are populated per type;
// Validate rejects malformed shapes before dispatch.
type IncomingEvent struct {
	Type EventType `json:"type"`

	// joinRooms
	ConversationIDs []string `json:"conversation_ids,omitempty"`

	// leaveRoom / typing / sendMessage / readMessages
	ConversationID string `json:"conversation_id,omitempty"`

	// setPresence
	Status model.PresenceStatus `json:"status,omitempty"`

	// typing
	IsTyping bool `json:"is_typing,omitempty"`

	// sendMessage / editMessage
	Content     string            `json:"content,omitempty"`
	ContentType model.ContentType `json:"content_type,omitempty"`

	// sendMessage (threaded reply) / getThreadReplies
	ParentID string `json:"parent_id,omitempty"`

	// editMessage / deleteMessage / reactToMessage
	MessageID string `json:"message_id,omitempty"`

	// reactToMessage
	Reaction string `json:"reaction,omitempty"`
}

// Validate checks the per-type required fields. The connection stays alive on
// failure; the event is dropped with a validation error.
func (e *IncomingEvent) Validate() error {
	switch e.Type {
	case EventJoinRooms:
		if len(e.ConversationIDs) == 0 {
			return fmt.Errorf("conversation_ids required")
		}
		for _, id := range e.ConversationIDs {
			if id == "" {
				return fmt.Errorf("empty conversation id")
			}
		}
	case EventLeaveRoom, EventTyping, EventReadMessages:
		if e.ConversationID == "" {
			return fmt.Errorf("conversation_id required")
		}
	case EventSetPresence:
		// OFFLINE is derived from connection count, never set by clients.
		if e.Status != model.PresenceOnline && e.Status != model.PresenceAway {
			return fmt.Errorf("status must be ONLINE or AWAY")
		}
	case EventSendMessage:
		if e.ConversationID == "" || e.Content == "" {
			return fmt.Errorf("conversation_id and content required")
		}
		if e.ContentType != "" && !e.ContentType.Valid() {
			return fmt.Errorf("unknown content_type %q", e.ContentType)
		}
	case EventEditMessage:
		if e.MessageID == "" || e.Content == "" {
			return fmt.Errorf("message_id and content required")
		}
	case EventDeleteMessage:
		if e.MessageID == "" {
			return fmt.Errorf("message_id required")
		}
	case EventReactToMessage:
		if e.MessageID == "" || e.Reaction == "" {
			return fmt.Errorf("message_id and reaction required")
		}
	case EventGetThreadReplies:
		if e.ParentID == "" {
			return fmt.Errorf("parent_id required")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// OutgoingEvent is what the server sends. Payload uses typed structs to
// avoid heap-heavy map[string]any.
type OutgoingEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PresencePayload is broadcast process-wide on every presence transition.
type PresencePayload struct {
	UserID    string               `json:"user_id"`
	Status    model.PresenceStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// TypingUpdatePayload carries the full current typing set, never a delta:
// out-of-order delta application across clients cannot corrupt their view.
type TypingUpdatePayload struct {
	ConversationID string   `json:"conversation_id"`
	UserIDs        []string `json:"user_ids"`
}

type MessageUpdatedPayload struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	EditedAt       time.Time `json:"edited_at"`
}

type MessageDeletedPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// ReactionUpdatePayload carries the complete authoritative reaction set.
type ReactionUpdatePayload struct {
	MessageID      string           `json:"message_id"`
	ConversationID string           `json:"conversation_id"`
	Reactions      []model.Reaction `json:"reactions"`
}

// MessagesReadPayload is a hint: recipients refetch counts rather than
// receiving the full message id list.
type MessagesReadPayload struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

type ThreadRepliesPayload struct {
	ParentID string          `json:"parent_id"`
	Replies  []model.Message `json:"replies"`
}

type ParticipantAddedPayload struct {
	ConversationID string            `json:"conversation_id"`
	Participant    model.Participant `json:"participant"`
}

type ParticipantRemovedPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsLeave        bool   `json:"is_leave"` // true if the user left themselves
}
