package ws

import (
	"context"
	"errors"
	"time"

	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/repository"
)

// handleReactToMessage applies the toggle law: the same value removes the
// reaction, a different value replaces it, no existing reaction creates one.
// The broadcast always carries the full authoritative set read back from the
// store, never a delta.
func (h *Hub) handleReactToMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleReactToMessage", time.Now())()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m, err := h.msgStore.GetByID(ctx, ev.MessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(c, ErrCodeForbiddenOrNotFound, "cannot react to message")
			return
		}
		logger.Errorf("ws load message for reaction %s: %v", ev.MessageID, err)
		h.sendError(c, ErrCodePersistence, "failed to react")
		return
	}

	existing, err := h.reactStore.Get(ctx, ev.MessageID, c.userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		err = h.reactStore.Set(ctx, ev.MessageID, c.userID, ev.Reaction)
	case err != nil:
		logger.Errorf("ws get reaction %s user=%s: %v", ev.MessageID, c.userID, err)
		h.sendError(c, ErrCodePersistence, "failed to react")
		return
	case existing.Value == ev.Reaction:
		err = h.reactStore.Delete(ctx, ev.MessageID, c.userID)
	default:
		err = h.reactStore.Set(ctx, ev.MessageID, c.userID, ev.Reaction)
	}
	if err != nil {
		logger.Errorf("ws apply reaction %s user=%s: %v", ev.MessageID, c.userID, err)
		h.sendError(c, ErrCodePersistence, "failed to react")
		return
	}

	reactions, err := h.reactStore.ListByMessage(ctx, ev.MessageID)
	if err != nil {
		logger.Errorf("ws list reactions %s: %v", ev.MessageID, err)
		return
	}

	h.sendToRoom(conversationRoom(m.ConversationID), nil, OutgoingEvent{
		Type: EventMessageReactionUpdate,
		Payload: ReactionUpdatePayload{
			MessageID:      ev.MessageID,
			ConversationID: m.ConversationID,
			Reactions:      reactions,
		},
	})
}

// handleReadMessages records read receipts for everything the identity has
// not yet marked in the conversation, zeroes its unread counter, and tells
// the other subscribers plus the reader's other devices. Idempotent: a replayed event inserts nothing and the
// broadcast is a refetch hint, not state.
func (h *Hub) handleReadMessages(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleReadMessages", time.Now())()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := h.receiptStore.InsertMissing(ctx, ev.ConversationID, c.userID); err != nil {
		logger.Errorf("ws insert receipts conv=%s user=%s: %v", ev.ConversationID, c.userID, err)
		h.sendError(c, ErrCodePersistence, "failed to mark read")
		return
	}

	if err := h.convStore.ResetUnread(ctx, ev.ConversationID, c.userID); err != nil {
		logger.Errorf("ws reset unread conv=%s user=%s: %v", ev.ConversationID, c.userID, err)
	}

	out := OutgoingEvent{
		Type:    EventMessagesRead,
		Payload: MessagesReadPayload{UserID: c.userID, ConversationID: ev.ConversationID},
	}

	// Other subscribers get the hint; the reader's devices are handled below
	// so the ones that never joined the room still clear their badge.
	for _, sc := range h.rooms.subscribers(conversationRoom(ev.ConversationID)) {
		if sc.userID == c.userID {
			continue
		}
		h.sendToClient(sc, out)
	}
	h.sendToUser(c.userID, c, out)
}
