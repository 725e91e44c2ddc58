package ws

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/conversa/internal/logger"
	"github.com/conversa/internal/model"
)

// sendLockShards — число шардов для per-conversation локов отправки.
const sendLockShards = 64

type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}
	total    int
	maxConns int

	rooms    *roomTable
	presence *presenceTable
	typing   *typingTable

	msgStore     MessageStore
	convStore    ConversationStore
	reactStore   ReactionStore
	receiptStore ReceiptStore
	userStore    UserStore

	presenceCache PresenceCache
	pushClient    PushNotifier

	// sendLocks serialize persist+fanout per conversation so delivery order
	// matches persisted seq order. Sharded by conversation id hash.
	sendLocks [sendLockShards]sync.Mutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(
	msgStore MessageStore,
	convStore ConversationStore,
	reactStore ReactionStore,
	receiptStore ReceiptStore,
	userStore UserStore,
	maxConns int,
	presenceCache PresenceCache,
	pushClient PushNotifier,
) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		sessions:      make(map[string]map[*Client]struct{}),
		maxConns:      maxConns,
		rooms:         newRoomTable(),
		presence:      newPresenceTable(),
		typing:        newTypingTable(),
		msgStore:      msgStore,
		convStore:     convStore,
		reactStore:    reactStore,
		receiptStore:  receiptStore,
		userStore:     userStore,
		presenceCache: presenceCache,
		pushClient:    pushClient,
		register:      make(chan *Client, 64),
		unregister:    make(chan *Client, 64),
		done:          make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.sessions {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.sessions = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.sessions[c.userID]; !ok {
		h.sessions[c.userID] = make(map[*Client]struct{})
	}
	h.sessions[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	// ONLINE broadcast only on the first connection of the identity;
	// a second device attaching is silent.
	if h.presence.connect(c.userID) {
		h.persistPresence(c.userID, model.PresenceOnline, time.Now().UTC())
		h.broadcastPresence(c, c.userID, model.PresenceOnline)
	}
}

// removeClient tears a connection down exactly once, in fixed order:
// room membership, then typing entries (with cleanup broadcasts), then the
// presence count. Identical for clean close and abnormal drop.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.sessions[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.sessions, c.userID)
	}
	h.mu.Unlock()

	h.rooms.leaveAll(c)

	for convID, remaining := range h.typing.removeClient(c) {
		h.sendToRoom(conversationRoom(convID), nil, OutgoingEvent{
			Type:    EventTypingUpdate,
			Payload: TypingUpdatePayload{ConversationID: convID, UserIDs: remaining},
		})
	}

	if h.presence.disconnect(c.userID) {
		// Last-seen is the moment of the final inbound event, not teardown time.
		h.persistPresence(c.userID, model.PresenceOffline, c.LastActive())
		h.broadcastPresence(c, c.userID, model.PresenceOffline)
	}

	// Network I/O outside the lock.
	c.Close()
}

// HandleEvent validates and dispatches one inbound event.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, ev IncomingEvent) {
	if err := ev.Validate(); err != nil {
		h.sendError(c, ErrCodeValidation, err.Error())
		return
	}

	switch ev.Type {
	case EventJoinRooms:
		h.handleJoinRooms(c, ev)
	case EventLeaveRoom:
		h.handleLeaveRoom(c, ev)
	case EventSetPresence:
		h.handleSetPresence(c, ev)
	case EventTyping:
		h.handleTyping(c, ev)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, ev)
	case EventEditMessage:
		h.handleEditMessage(ctx, c, ev)
	case EventDeleteMessage:
		h.handleDeleteMessage(ctx, c, ev)
	case EventReactToMessage:
		h.handleReactToMessage(ctx, c, ev)
	case EventReadMessages:
		h.handleReadMessages(ctx, c, ev)
	case EventGetThreadReplies:
		h.handleGetThreadReplies(ctx, c, ev)
	}
}

func (h *Hub) handleJoinRooms(c *Client, ev IncomingEvent) {
	for _, convID := range ev.ConversationIDs {
		h.rooms.join(c, conversationRoom(convID))
	}
}

func (h *Hub) handleLeaveRoom(c *Client, ev IncomingEvent) {
	h.rooms.leave(c, conversationRoom(ev.ConversationID))
}

func (h *Hub) handleSetPresence(c *Client, ev IncomingEvent) {
	if !h.presence.set(c.userID, ev.Status) {
		return
	}
	h.persistPresence(c.userID, ev.Status, time.Now().UTC())
	h.broadcastPresence(c, c.userID, ev.Status)
}

func (h *Hub) handleTyping(c *Client, ev IncomingEvent) {
	users := h.typing.set(ev.ConversationID, c.userID, c, ev.IsTyping)
	h.sendToRoom(conversationRoom(ev.ConversationID), c, OutgoingEvent{
		Type:    EventTypingUpdate,
		Payload: TypingUpdatePayload{ConversationID: ev.ConversationID, UserIDs: users},
	})
}

// persistPresence mirrors a transition into Postgres and the presence cache.
// Best-effort: broadcast proceeds even when a sink is down.
func (h *Hub) persistPresence(userID string, status model.PresenceStatus, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.userStore.SetPresence(ctx, userID, status, at); err != nil {
		logger.Errorf("ws persist presence user=%s: %v", userID, err)
	}
	if h.presenceCache != nil {
		if err := h.presenceCache.SetStatus(ctx, userID, status, at); err != nil {
			logger.Errorf("ws cache presence user=%s: %v", userID, err)
		}
	}
}

// broadcastPresence notifies every connection in the process except the one
// that triggered the transition. The identity's other devices do receive it.
func (h *Hub) broadcastPresence(origin *Client, userID string, status model.PresenceStatus) {
	out := OutgoingEvent{Type: EventPresenceUpdate, Payload: PresencePayload{
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}}

	h.mu.RLock()
	targets := make([]*Client, 0, h.total)
	for _, clients := range h.sessions {
		for c := range clients {
			if c != origin {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, out)
	}
}

// BroadcastToConversation delivers an event to every connection subscribed to
// the conversation's room. Used by the REST layer for membership changes.
func (h *Hub) BroadcastToConversation(conversationID string, ev OutgoingEvent) {
	h.sendToRoom(conversationRoom(conversationID), nil, ev)
}

// sendToRoom fans out to a room snapshot; except (may be nil) is skipped.
func (h *Hub) sendToRoom(roomID string, except *Client, ev OutgoingEvent) {
	for _, c := range h.rooms.subscribers(roomID) {
		if c == except {
			continue
		}
		h.sendToClient(c, ev)
	}
}

// sendToUser delivers to every connection of the identity, room membership
// aside; except (may be nil) is skipped.
func (h *Hub) sendToUser(userID string, except *Client, ev OutgoingEvent) {
	h.mu.RLock()
	clients, ok := h.sessions[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

func (h *Hub) sendToClient(c *Client, ev OutgoingEvent) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) sendError(c *Client, code, msg string) {
	h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: ErrorPayload{Code: code, Message: msg}})
}

// sendLock returns the per-conversation fanout lock.
func (h *Hub) sendLock(conversationID string) *sync.Mutex {
	fh := fnv.New32a()
	fh.Write([]byte(conversationID))
	return &h.sendLocks[fh.Sum32()%sendLockShards]
}

// IsOnline reports whether the identity has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.presence.status(userID) != model.PresenceOffline
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
