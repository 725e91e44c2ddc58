package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/conversa/internal/middleware"
	"github.com/conversa/internal/model"
	"github.com/conversa/internal/repository"
	"github.com/google/uuid"
)

// PushHandler обрабатывает подписку на пуш-уведомления.
type PushHandler struct {
	subs        *repository.PushSubscriptionRepository
	vapidPublic string
}

func NewPushHandler(subs *repository.PushSubscriptionRepository, vapidPublic string) *PushHandler {
	return &PushHandler{subs: subs, vapidPublic: vapidPublic}
}

// PublicKey отдаёт VAPID public key — фронт передаёт его в PushManager.subscribe().
func (h *PushHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.vapidPublic})
}

// SubscribeRequest — тело от фронта (subscription из PushManager.getSubscription()).
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Subscribe сохраняет подписку текущего пользователя (upsert по endpoint).
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys required")
		return
	}
	sub := &model.PushSubscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.subs.Save(r.Context(), sub); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnsubscribeRequest — тело для отписки по endpoint.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe удаляет подписку.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.subs.DeleteByEndpoint(r.Context(), req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
