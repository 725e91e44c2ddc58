package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/conversa/internal/middleware"
	"github.com/conversa/internal/model"
	"github.com/conversa/internal/repository"
	"github.com/go-chi/chi/v5"
)

type fakeMessageReader struct{ messages []model.Message }

func (f *fakeMessageReader) GetByID(ctx context.Context, id string) (*model.Message, error) {
	for i := range f.messages {
		if f.messages[i].ID == id {
			cp := f.messages[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessageReader) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeMembership struct{ members map[string]bool }

func (f *fakeMembership) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	return f.members[conversationID+"|"+userID], nil
}

type fakeReceipts struct{ inserts []string }

func (f *fakeReceipts) InsertMissing(ctx context.Context, conversationID, userID string) (int64, error) {
	f.inserts = append(f.inserts, conversationID+"|"+userID)
	return 1, nil
}

func (f *fakeReceipts) ReaderIDs(ctx context.Context, messageID string) ([]string, error) {
	return nil, nil
}

type fakeReactions struct{}

func (fakeReactions) ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error) {
	return nil, nil
}

func fetchHistory(h *MessageHandler, userID, convID string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/api/conversations/{id}/messages", h.History)
	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+convID+"/messages", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHistoryRecordsReadReceipts(t *testing.T) {
	receipts := &fakeReceipts{}
	h := NewMessageHandler(
		&fakeMessageReader{messages: []model.Message{
			{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hi"},
		}},
		&fakeMembership{members: map[string]bool{"c1|bob": true}},
		receipts,
		fakeReactions{},
	)

	rec := fetchHistory(h, "bob", "c1")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var got []model.Message
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("unexpected page: %+v", got)
	}

	// Fetching the page marks it read.
	if len(receipts.inserts) != 1 || receipts.inserts[0] != "c1|bob" {
		t.Fatalf("want one receipt insert for c1|bob, got %v", receipts.inserts)
	}
}

func TestHistoryForbiddenWithoutMembership(t *testing.T) {
	receipts := &fakeReceipts{}
	h := NewMessageHandler(
		&fakeMessageReader{},
		&fakeMembership{members: map[string]bool{}},
		receipts,
		fakeReactions{},
	)

	rec := fetchHistory(h, "mallory", "c1")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("want 403, got %d", rec.Code)
	}
	if len(receipts.inserts) != 0 {
		t.Fatalf("non-members must not produce receipts, got %v", receipts.inserts)
	}
}
