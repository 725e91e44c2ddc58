package ws

import (
	"sync"

	"github.com/conversa/internal/model"
)

// presenceTable держит счётчик активных подключений на identity.
// OFFLINE никогда не устанавливается явно — только выводится из счётчика.
type presenceTable struct {
	mu      sync.Mutex
	entries map[string]*presenceEntry
}

type presenceEntry struct {
	conns  int
	status model.PresenceStatus
}

func newPresenceTable() *presenceTable {
	return &presenceTable{entries: make(map[string]*presenceEntry)}
}

// connect increments the connection count. Returns true on the 0 -> 1
// transition, the only point where an ONLINE broadcast is due.
func (t *presenceTable) connect(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	if !ok {
		t.entries[userID] = &presenceEntry{conns: 1, status: model.PresenceOnline}
		return true
	}
	e.conns++
	return false
}

// disconnect decrements the count. Returns true when the last connection
// dropped; the entry is removed so a later connect is a fresh 0 -> 1 again.
func (t *presenceTable) disconnect(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	if !ok {
		return false
	}
	e.conns--
	if e.conns > 0 {
		return false
	}
	delete(t.entries, userID)
	return true
}

// set applies an explicit ONLINE/AWAY transition for a connected identity.
// Returns false when the identity has no live connections or the status is
// already current, in which case no broadcast is due.
func (t *presenceTable) set(userID string, status model.PresenceStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	if !ok || e.status == status {
		return false
	}
	e.status = status
	return true
}

// status returns the current in-memory status; identities with no live
// connections read as OFFLINE.
func (t *presenceTable) status(userID string) model.PresenceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[userID]; ok {
		return e.status
	}
	return model.PresenceOffline
}
