package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/middleware"
	"github.com/conversa/internal/model"
	"github.com/conversa/internal/repository"
	"github.com/conversa/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ConversationHandler struct {
	convRepo *repository.ConversationRepository
	userRepo *repository.UserRepository
	msgRepo  *repository.MessageRepository
	hub      *ws.Hub
}

func NewConversationHandler(convRepo *repository.ConversationRepository, userRepo *repository.UserRepository, msgRepo *repository.MessageRepository, hub *ws.Hub) *ConversationHandler {
	return &ConversationHandler{convRepo: convRepo, userRepo: userRepo, msgRepo: msgRepo, hub: hub}
}

// List returns the user's conversations, most recently active first, with
// participants, unread counter and last-message preview attached.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convs, err := h.convRepo.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	enriched := make([]*model.Conversation, 0, len(convs))
	for i := range convs {
		c, err := h.enrich(r.Context(), &convs[i], userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to enrich conversation")
			return
		}
		enriched = append(enriched, c)
	}
	writeJSON(w, http.StatusOK, enriched)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	conv, err := h.convRepo.GetByID(r.Context(), convID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	enriched, err := h.enrich(r.Context(), conv, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enrich conversation")
		return
	}
	writeJSON(w, http.StatusOK, enriched)
}

type CreatePrivateRequest struct {
	UserID string `json:"user_id"`
}

// CreatePrivate находит или создаёт диалог 1-на-1. Повторный вызов с тем же
// собеседником возвращает существующий диалог.
func (h *ConversationHandler) CreatePrivate(w http.ResponseWriter, r *http.Request) {
	var req CreatePrivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())
	if req.UserID == "" || req.UserID == currentUserID {
		writeError(w, http.StatusBadRequest, "user_id must be another user")
		return
	}

	existing, err := h.convRepo.FindPrivate(r.Context(), currentUserID, req.UserID)
	if err == nil {
		enriched, err := h.enrich(r.Context(), existing, currentUserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to enrich conversation")
			return
		}
		writeJSON(w, http.StatusOK, enriched)
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to look up conversation")
		return
	}

	if _, err := h.userRepo.GetByID(r.Context(), req.UserID); err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        uuid.New().String(),
		IsGroup:   false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.convRepo.Create(r.Context(), conv); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	for _, uid := range []string{currentUserID, req.UserID} {
		p := &model.Participant{ConversationID: conv.ID, UserID: uid, JoinedAt: now}
		if err := h.convRepo.AddParticipant(r.Context(), p); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to add participant")
			return
		}
	}

	enriched, err := h.enrich(r.Context(), conv, currentUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enrich conversation")
		return
	}
	writeJSON(w, http.StatusCreated, enriched)
}

type CreateGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// CreateGroup создаёт групповой диалог с invite-кодом. Создатель — админ.
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:         uuid.New().String(),
		Name:       strings.TrimSpace(req.Name),
		IsGroup:    true,
		InviteCode: strings.ReplaceAll(uuid.New().String(), "-", "")[:10],
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.convRepo.Create(r.Context(), conv); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	admin := &model.Participant{ConversationID: conv.ID, UserID: currentUserID, IsAdmin: true, JoinedAt: now}
	if err := h.convRepo.AddParticipant(r.Context(), admin); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add participant")
		return
	}
	for _, uid := range req.MemberIDs {
		if uid == currentUserID {
			continue
		}
		if _, err := h.userRepo.GetByID(r.Context(), uid); err != nil {
			continue // unknown ids are skipped, not fatal
		}
		p := &model.Participant{ConversationID: conv.ID, UserID: uid, JoinedAt: now}
		if err := h.convRepo.AddParticipant(r.Context(), p); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to add participant")
			return
		}
	}

	enriched, err := h.enrich(r.Context(), conv, currentUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enrich conversation")
		return
	}
	writeJSON(w, http.StatusCreated, enriched)
}

type JoinByInviteRequest struct {
	Code string `json:"code"`
}

// JoinByInvite adds the caller to the group behind an invite code. Re-joining
// is a no-op thanks to the duplicate-skip insert.
func (h *ConversationHandler) JoinByInvite(w http.ResponseWriter, r *http.Request) {
	var req JoinByInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())
	conv, err := h.convRepo.GetByInviteCode(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invite not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to look up invite")
		return
	}

	p := &model.Participant{ConversationID: conv.ID, UserID: currentUserID, JoinedAt: time.Now().UTC()}
	if err := h.convRepo.AddParticipant(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to join")
		return
	}

	h.broadcastParticipantAdded(r.Context(), conv.ID, currentUserID)

	enriched, err := h.enrich(r.Context(), conv, currentUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enrich conversation")
		return
	}
	writeJSON(w, http.StatusOK, enriched)
}

type AddParticipantRequest struct {
	UserID string `json:"user_id"`
}

// AddParticipant adds a user to a group conversation. Admin only.
func (h *ConversationHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())
	isAdmin, err := h.convRepo.IsAdmin(r.Context(), convID, currentUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check admin")
		return
	}
	if !isAdmin {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}

	if _, err := h.userRepo.GetByID(r.Context(), req.UserID); err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	p := &model.Participant{ConversationID: convID, UserID: req.UserID, JoinedAt: time.Now().UTC()}
	if err := h.convRepo.AddParticipant(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add participant")
		return
	}

	h.broadcastParticipantAdded(r.Context(), convID, req.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveParticipant removes a user from a group conversation: admins remove
// anyone, a user removes themselves (leave).
func (h *ConversationHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	targetID := chi.URLParam(r, "userId")
	currentUserID := middleware.GetUserID(r.Context())

	isLeave := targetID == currentUserID
	if !isLeave {
		isAdmin, err := h.convRepo.IsAdmin(r.Context(), convID, currentUserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check admin")
			return
		}
		if !isAdmin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
	}

	if err := h.convRepo.RemoveParticipant(r.Context(), convID, targetID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove participant")
		return
	}

	h.hub.BroadcastToConversation(convID, ws.OutgoingEvent{
		Type: ws.EventParticipantRemoved,
		Payload: ws.ParticipantRemovedPayload{
			ConversationID: convID,
			UserID:         targetID,
			IsLeave:        isLeave,
		},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) broadcastParticipantAdded(ctx context.Context, convID, userID string) {
	u, err := h.userRepo.GetByID(ctx, userID)
	if err != nil {
		logger.Errorf("conv broadcast participant added user=%s: %v", userID, err)
		return
	}
	pub := u.ToPublic()
	h.hub.BroadcastToConversation(convID, ws.OutgoingEvent{
		Type: ws.EventParticipantAdded,
		Payload: ws.ParticipantAddedPayload{
			ConversationID: convID,
			Participant:    model.Participant{ConversationID: convID, UserID: userID, User: &pub},
		},
	})
}

func (h *ConversationHandler) enrich(ctx context.Context, conv *model.Conversation, userID string) (*model.Conversation, error) {
	parts, err := h.convRepo.ListParticipants(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Participants = parts

	if count, err := h.convRepo.GetUnreadCount(ctx, conv.ID, userID); err == nil {
		for i := range conv.Participants {
			if conv.Participants[i].UserID == userID {
				conv.Participants[i].UnreadCount = count
			}
		}
	}

	if conv.LastMessageID != nil {
		if m, err := h.msgRepo.GetByID(ctx, *conv.LastMessageID); err == nil {
			conv.LastMessage = m
		}
	}
	return conv, nil
}
