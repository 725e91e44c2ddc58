package ws

import (
	"context"
	"time"

	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/model"
	"github.com/google/uuid"
)

const threadRepliesLimit = 100

// handleSendMessage persists a message and fans it out to the conversation
// room. The per-conversation lock is held across persist and fanout enqueue:
// two messages in one conversation are enqueued to every subscriber in seq
// order. Messages in different conversations proceed in parallel.
func (h *Hub) handleSendMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	contentType := model.ContentTypeText
	if ev.ContentType != "" {
		contentType = ev.ContentType
	}

	var parentID *string
	if ev.ParentID != "" {
		parentID = &ev.ParentID
	}

	lock := h.sendLock(ev.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	m := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: ev.ConversationID,
		SenderID:       c.userID,
		Content:        ev.Content,
		ContentType:    contentType,
		ParentID:       parentID,
		CreatedAt:      now,
	}

	if err := h.msgStore.Create(ctx, m); err != nil {
		logger.Errorf("ws save message conv=%s user=%s: %v", ev.ConversationID, c.userID, err)
		h.sendError(c, ErrCodePersistence, "failed to save message")
		return
	}

	if err := h.convStore.SetLastMessage(ctx, ev.ConversationID, m.ID, now); err != nil {
		logger.Errorf("ws set last message conv=%s: %v", ev.ConversationID, err)
	}
	if err := h.convStore.IncrementUnread(ctx, ev.ConversationID, c.userID); err != nil {
		logger.Errorf("ws increment unread conv=%s: %v", ev.ConversationID, err)
	}

	sender, err := h.userStore.GetByID(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws get sender user=%s: %v", c.userID, err)
	} else {
		pub := sender.ToPublic()
		m.Sender = &pub
	}

	// Attach parent preview for threaded replies.
	if parentID != nil {
		parent, err := h.msgStore.GetByID(ctx, *parentID)
		if err == nil {
			m.Parent = &model.Message{
				ID:          parent.ID,
				SenderID:    parent.SenderID,
				Content:     parent.Content,
				ContentType: parent.ContentType,
				Sender:      parent.Sender,
			}
		}
	}

	h.sendToRoom(conversationRoom(ev.ConversationID), nil, OutgoingEvent{Type: EventNewMessage, Payload: m})

	// Thread subscribers get a dedicated event on top of the room fanout.
	if parentID != nil {
		h.sendToRoom(threadRoom(*parentID), nil, OutgoingEvent{Type: EventNewThreadReply, Payload: m})
	}

	h.notifyParticipants(ctx, c.userID, m)
}

// notifyParticipants fires push notifications to every participant except the
// sender. Fire-and-forget per recipient.
func (h *Hub) notifyParticipants(ctx context.Context, senderID string, m *model.Message) {
	if h.pushClient == nil {
		return
	}
	participantIDs, err := h.convStore.ParticipantIDs(ctx, m.ConversationID)
	if err != nil {
		logger.Errorf("ws get participants conv=%s: %v", m.ConversationID, err)
		return
	}

	senderName := "New message"
	if m.Sender != nil && m.Sender.Username != "" {
		senderName = m.Sender.Username
	}
	body := m.Content
	if m.ContentType != model.ContentTypeText || body == "" {
		body = "Attachment"
	}
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{"conversation_id": m.ConversationID, "message_id": m.ID}
	for _, uid := range participantIDs {
		if uid == senderID || h.IsOnline(uid) {
			// Live connections already got the fanout.
			continue
		}
		uid := uid
		go h.pushClient.Notify(context.Background(), uid, senderName, body, data)
	}
}

func (h *Hub) handleEditMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleEditMessage", time.Now())()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	ok, err := h.msgStore.UpdateContentIfSender(ctx, ev.MessageID, c.userID, ev.Content, now)
	if err != nil {
		logger.Errorf("ws edit message %s: %v", ev.MessageID, err)
		h.sendError(c, ErrCodePersistence, "failed to edit message")
		return
	}
	if !ok {
		h.sendError(c, ErrCodeForbiddenOrNotFound, "cannot edit message")
		return
	}

	m, err := h.msgStore.GetByID(ctx, ev.MessageID)
	if err != nil {
		logger.Errorf("ws reload edited message %s: %v", ev.MessageID, err)
		return
	}

	h.sendToRoom(conversationRoom(m.ConversationID), nil, OutgoingEvent{
		Type: EventMessageUpdated,
		Payload: MessageUpdatedPayload{
			MessageID:      ev.MessageID,
			ConversationID: m.ConversationID,
			Content:        ev.Content,
			EditedAt:       now,
		},
	})
}

// handleDeleteMessage soft-deletes and broadcasts to the whole conversation
// room, so every participant drops the message, not just the sender's devices.
func (h *Hub) handleDeleteMessage(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleDeleteMessage", time.Now())()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, err := h.msgStore.SoftDeleteIfSender(ctx, ev.MessageID, c.userID)
	if err != nil {
		logger.Errorf("ws delete message %s: %v", ev.MessageID, err)
		h.sendError(c, ErrCodePersistence, "failed to delete message")
		return
	}
	if !ok {
		h.sendError(c, ErrCodeForbiddenOrNotFound, "cannot delete message")
		return
	}

	// The row survives soft deletion, so the conversation id is still readable.
	m, err := h.msgStore.GetByID(ctx, ev.MessageID)
	if err != nil {
		logger.Errorf("ws reload deleted message %s: %v", ev.MessageID, err)
		return
	}

	h.sendToRoom(conversationRoom(m.ConversationID), nil, OutgoingEvent{
		Type: EventMessageDeleted,
		Payload: MessageDeletedPayload{
			MessageID:      ev.MessageID,
			ConversationID: m.ConversationID,
		},
	})
}

// handleGetThreadReplies subscribes the connection to the thread room and
// returns the reply history to the requester only. Future replies arrive as
// newThreadReply events.
func (h *Hub) handleGetThreadReplies(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleGetThreadReplies", time.Now())()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	h.rooms.join(c, threadRoom(ev.ParentID))

	replies, err := h.msgStore.ListThreadReplies(ctx, ev.ParentID, threadRepliesLimit)
	if err != nil {
		logger.Errorf("ws list thread replies parent=%s: %v", ev.ParentID, err)
		h.sendError(c, ErrCodePersistence, "failed to load thread replies")
		return
	}

	h.sendToClient(c, OutgoingEvent{
		Type:    EventThreadReplies,
		Payload: ThreadRepliesPayload{ParentID: ev.ParentID, Replies: replies},
	})
}
