package ws

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conversa/internal/model"
	"github.com/conversa/internal/repository"
)

// fakeStore is an in-memory stand-in for the repositories, implementing every
// store interface the hub consumes.
type fakeStore struct {
	mu           sync.Mutex
	seq          int64
	messages     map[string]*model.Message
	reactions    map[string]map[string]model.Reaction
	receipts     map[string]map[string]bool
	unread       map[string]int
	lastMessage  map[string]string
	participants map[string][]string
	users        map[string]*model.User
	presence     map[string]model.PresenceStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:     make(map[string]*model.Message),
		reactions:    make(map[string]map[string]model.Reaction),
		receipts:     make(map[string]map[string]bool),
		unread:       make(map[string]int),
		lastMessage:  make(map[string]string),
		participants: make(map[string][]string),
		users:        make(map[string]*model.User),
		presence:     make(map[string]model.PresenceStatus),
	}
}

func (f *fakeStore) addUser(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &model.User{ID: id, Username: id}
}

func (f *fakeStore) Create(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m.Seq = f.seq
	cp := *m
	f.messages[m.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) ListThreadReplies(ctx context.Context, parentID string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.ParentID != nil && *m.ParentID == parentID && !m.IsDeleted {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateContentIfSender(ctx context.Context, id, senderID, content string, editedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.SenderID != senderID || m.IsDeleted {
		return false, nil
	}
	m.Content = content
	m.EditedAt = &editedAt
	return true, nil
}

func (f *fakeStore) SoftDeleteIfSender(ctx context.Context, id, senderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.SenderID != senderID || m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	m.Content = ""
	return true, nil
}

func (f *fakeStore) SetLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMessage[conversationID] = messageID
	return nil
}

func (f *fakeStore) IncrementUnread(ctx context.Context, conversationID, exceptUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, uid := range f.participants[conversationID] {
		if uid != exceptUserID {
			f.unread[conversationID+"|"+uid]++
		}
	}
	return nil
}

func (f *fakeStore) ResetUnread(ctx context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread[conversationID+"|"+userID] = 0
	return nil
}

func (f *fakeStore) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.participants[conversationID]...), nil
}

func (f *fakeStore) Get(ctx context.Context, messageID, userID string) (*model.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.reactions[messageID][userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := rc
	return &cp, nil
}

func (f *fakeStore) Set(ctx context.Context, messageID, userID, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reactions[messageID]; !ok {
		f.reactions[messageID] = make(map[string]model.Reaction)
	}
	f.reactions[messageID][userID] = model.Reaction{MessageID: messageID, UserID: userID, Value: value, Username: userID}
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, messageID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reactions[messageID], userID)
	return nil
}

func (f *fakeStore) ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Reaction, 0, len(f.reactions[messageID]))
	for _, rc := range f.reactions[messageID] {
		out = append(out, rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) InsertMissing(ctx context.Context, conversationID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.ConversationID != conversationID || m.SenderID == userID {
			continue
		}
		if _, ok := f.receipts[m.ID]; !ok {
			f.receipts[m.ID] = make(map[string]bool)
		}
		if !f.receipts[m.ID][userID] {
			f.receipts[m.ID][userID] = true
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) SetPresence(ctx context.Context, userID string, status model.PresenceStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence[userID] = status
	return nil
}

func (f *fakeStore) unreadCount(conversationID, userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[conversationID+"|"+userID]
}

func (f *fakeStore) receiptCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, readers := range f.receipts {
		if readers[userID] {
			n++
		}
	}
	return n
}

// userStoreAdapter renames GetUser to GetByID so fakeStore can keep both
// Get (reactions) and GetByID (messages) without a collision.
type userStoreAdapter struct{ f *fakeStore }

func (a userStoreAdapter) GetByID(ctx context.Context, id string) (*model.User, error) {
	return a.f.GetUser(ctx, id)
}

func (a userStoreAdapter) SetPresence(ctx context.Context, userID string, status model.PresenceStatus, at time.Time) error {
	return a.f.SetPresence(ctx, userID, status, at)
}

func newTestHub(store *fakeStore) *Hub {
	return NewHub(store, store, store, store, userStoreAdapter{store}, 100, nil, nil)
}

// connect registers a connectionless client directly, bypassing the
// register channel so tests stay single-goroutine.
func connect(h *Hub, userID string) *Client {
	c := NewClient(h, nil, userID, userID)
	h.addClient(c)
	return c
}

// drain collects everything currently buffered for the client.
func drain(c *Client) []OutgoingEvent {
	var out []OutgoingEvent
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfType(evs []OutgoingEvent, t EventType) []OutgoingEvent {
	var out []OutgoingEvent
	for _, ev := range evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func sendText(h *Hub, c *Client, convID, content string) {
	h.HandleEvent(context.Background(), c, IncomingEvent{
		Type:           EventSendMessage,
		ConversationID: convID,
		Content:        content,
	})
}

func joinConv(h *Hub, c *Client, convIDs ...string) {
	h.HandleEvent(context.Background(), c, IncomingEvent{Type: EventJoinRooms, ConversationIDs: convIDs})
}

func lastMessageID(store *fakeStore, convID string) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	id, ok := store.lastMessage[convID]
	if !ok {
		return "", fmt.Errorf("no last message for %s", convID)
	}
	return id, nil
}
