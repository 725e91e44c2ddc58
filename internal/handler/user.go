package handler

import (
	"errors"
	"net/http"

	"github.com/conversa/internal/middleware"
	"github.com/conversa/internal/repository"
	"github.com/conversa/internal/storage"
	"github.com/go-chi/chi/v5"
)

type UserHandler struct {
	userRepo *repository.UserRepository
	presence storage.PresenceCache
}

func NewUserHandler(userRepo *repository.UserRepository, presence storage.PresenceCache) *UserHandler {
	return &UserHandler{userRepo: userRepo, presence: presence}
}

// Me returns the authenticated user's own profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	u, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Search ищет пользователей по префиксу username (?q=, лимит 20).
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	users, err := h.userRepo.SearchByUsername(r.Context(), q, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	public := make([]any, 0, len(users))
	for i := range users {
		public = append(public, users[i].ToPublic())
	}
	writeJSON(w, http.StatusOK, public)
}

type presenceResponse struct {
	UserID   string `json:"user_id"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen"`
}

// Presence reads a user's status from the fast cache, so the API does not hit
// Postgres for every presence poll.
func (h *UserHandler) Presence(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	status, lastSeen, err := h.presence.GetStatus(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load presence")
		return
	}
	writeJSON(w, http.StatusOK, presenceResponse{
		UserID:   userID,
		Status:   string(status),
		LastSeen: lastSeen.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}
