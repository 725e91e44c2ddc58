package ws

import (
	"sort"
	"sync"
)

// typingTable tracks who is typing per conversation at identity granularity.
// Each entry remembers the connection that last asserted it, so teardown of
// that connection clears the entry even when the client never sent the
// explicit stop (last-writer-wins across a user's devices).
type typingTable struct {
	mu    sync.Mutex
	rooms map[string]map[string]*Client
}

func newTypingTable() *typingTable {
	return &typingTable{rooms: make(map[string]map[string]*Client)}
}

// set starts or stops typing for userID in a conversation and returns the
// resulting full set. The set is sorted so every recipient sees the same
// stable ordering.
func (t *typingTable) set(conversationID, userID string, c *Client, typing bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.rooms[conversationID]
	if typing {
		if !ok {
			users = make(map[string]*Client)
			t.rooms[conversationID] = users
		}
		users[userID] = c
	} else if ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.rooms, conversationID)
		}
	}
	return t.snapshotLocked(conversationID)
}

// removeClient drops every typing entry owned by the connection and returns
// the remaining set per affected conversation, for cleanup broadcasts.
func (t *typingTable) removeClient(c *Client) map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	affected := make(map[string][]string)
	for convID, users := range t.rooms {
		for userID, owner := range users {
			if owner != c {
				continue
			}
			delete(users, userID)
			if len(users) == 0 {
				delete(t.rooms, convID)
			}
			affected[convID] = t.snapshotLocked(convID)
		}
	}
	return affected
}

func (t *typingTable) snapshot(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(conversationID)
}

func (t *typingTable) snapshotLocked(conversationID string) []string {
	users := t.rooms[conversationID]
	out := make([]string, 0, len(users))
	for userID := range users {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}
