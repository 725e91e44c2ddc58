package ws

import "sync"

// Префиксы комнат: диалоги и треды живут в одном пространстве имён.
const (
	conversationRoomPrefix = "conversation:"
	threadRoomPrefix       = "thread:"
)

func conversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}

func threadRoom(parentID string) string {
	return threadRoomPrefix + parentID
}

// roomTable maps room ids to subscribed connections, with a reverse index so
// a disconnecting connection can be removed without scanning every room.
// Membership is per connection, not per identity: each device joins on its own.
type roomTable struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	byClient map[*Client]map[string]struct{}
}

func newRoomTable() *roomTable {
	return &roomTable{
		rooms:    make(map[string]map[*Client]struct{}),
		byClient: make(map[*Client]map[string]struct{}),
	}
}

// join is idempotent: re-joining an already-joined room is a no-op.
func (t *roomTable) join(c *Client, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rooms[roomID]; !ok {
		t.rooms[roomID] = make(map[*Client]struct{})
	}
	t.rooms[roomID][c] = struct{}{}
	if _, ok := t.byClient[c]; !ok {
		t.byClient[c] = make(map[string]struct{})
	}
	t.byClient[c][roomID] = struct{}{}
}

// leave is idempotent; empty rooms are dropped from the table.
func (t *roomTable) leave(c *Client, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detach(c, roomID)
}

// leaveAll removes the connection from every room it joined and returns the
// room ids it left. Called exactly once per connection during teardown.
func (t *roomTable) leaveAll(c *Client) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	joined := t.byClient[c]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
		t.detach(c, roomID)
	}
	return left
}

// detach assumes t.mu is held.
func (t *roomTable) detach(c *Client, roomID string) {
	if subs, ok := t.rooms[roomID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(t.rooms, roomID)
		}
	}
	if joined, ok := t.byClient[c]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(t.byClient, c)
		}
	}
}

// subscribers snapshots the room membership so callers can fan out without
// holding the table lock.
func (t *roomTable) subscribers(roomID string) []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	subs, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

func (t *roomTable) contains(roomID string, c *Client) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rooms[roomID][c]
	return ok
}
