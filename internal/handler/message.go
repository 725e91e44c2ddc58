package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/middleware"
	"github.com/conversa/internal/model"
	"github.com/conversa/internal/repository"
	"github.com/go-chi/chi/v5"
)

// Narrow repository views, so tests can stub storage.

type messageReader interface {
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
}

type membershipChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

type receiptRecorder interface {
	InsertMissing(ctx context.Context, conversationID, userID string) (int64, error)
	ReaderIDs(ctx context.Context, messageID string) ([]string, error)
}

type reactionLister interface {
	ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error)
}

type MessageHandler struct {
	msgRepo     messageReader
	convRepo    membershipChecker
	receiptRepo receiptRecorder
	reactRepo   reactionLister
}

func NewMessageHandler(msgRepo messageReader, convRepo membershipChecker, receiptRepo receiptRecorder, reactRepo reactionLister) *MessageHandler {
	return &MessageHandler{msgRepo: msgRepo, convRepo: convRepo, receiptRepo: receiptRepo, reactRepo: reactRepo}
}

// History returns conversation messages newest-first (?limit=, ?offset=).
// Reactions are attached per message; soft-deleted rows come back as
// tombstones (is_deleted, empty content) so clients keep thread structure.
// Fetching history counts as reading it: receipts are recorded the same way
// an explicit mark-read does.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID := chi.URLParam(r, "id")

	isMember, err := h.convRepo.IsParticipant(r.Context(), convID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	messages, err := h.msgRepo.ListByConversation(r.Context(), convID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	// Best-effort: a receipt failure must not fail the page.
	if _, err := h.receiptRepo.InsertMissing(r.Context(), convID, userID); err != nil {
		logger.Errorf("history receipts conv=%s user=%s: %v", convID, userID, err)
	}

	for i := range messages {
		reactions, err := h.reactRepo.ListByMessage(r.Context(), messages[i].ID)
		if err == nil && len(reactions) > 0 {
			messages[i].Reactions = reactions
		}
	}

	writeJSON(w, http.StatusOK, messages)
}

// Readers lists the identities that marked a message read.
func (h *MessageHandler) Readers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	msgID := chi.URLParam(r, "id")

	m, err := h.msgRepo.GetByID(r.Context(), msgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load message")
		return
	}

	isMember, err := h.convRepo.IsParticipant(r.Context(), m.ConversationID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	readers, err := h.receiptRepo.ReaderIDs(r.Context(), msgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load readers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message_id": msgID, "reader_ids": readers})
}
