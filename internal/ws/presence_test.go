package ws

import (
	"context"
	"testing"

	"github.com/conversa/internal/model"
)

func TestPresenceBroadcastOnFirstConnectionOnly(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice")
	store.addUser("bob")
	h := newTestHub(store)

	observer := connect(h, "bob")
	drain(observer)

	a1 := connect(h, "alice")
	got := eventsOfType(drain(observer), EventPresenceUpdate)
	if len(got) != 1 {
		t.Fatalf("want 1 presence update after first connection, got %d", len(got))
	}
	p := got[0].Payload.(PresencePayload)
	if p.UserID != "alice" || p.Status != model.PresenceOnline {
		t.Fatalf("unexpected payload: %+v", p)
	}

	// Second device: no broadcast.
	a2 := connect(h, "alice")
	if got := eventsOfType(drain(observer), EventPresenceUpdate); len(got) != 0 {
		t.Fatalf("second connection must be silent, got %d updates", len(got))
	}

	// First disconnect: still one connection left, no OFFLINE.
	h.removeClient(a1)
	if got := eventsOfType(drain(observer), EventPresenceUpdate); len(got) != 0 {
		t.Fatalf("disconnect with a live connection left must be silent, got %d updates", len(got))
	}

	// Last disconnect: exactly one OFFLINE.
	h.removeClient(a2)
	got = eventsOfType(drain(observer), EventPresenceUpdate)
	if len(got) != 1 {
		t.Fatalf("want 1 presence update after last disconnect, got %d", len(got))
	}
	p = got[0].Payload.(PresencePayload)
	if p.Status != model.PresenceOffline {
		t.Fatalf("want OFFLINE, got %s", p.Status)
	}
}

func TestSetPresenceAway(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice")
	store.addUser("bob")
	h := newTestHub(store)

	a := connect(h, "alice")
	observer := connect(h, "bob")
	drain(observer)
	drain(a)

	h.HandleEvent(context.Background(), a, IncomingEvent{Type: EventSetPresence, Status: model.PresenceAway})
	got := eventsOfType(drain(observer), EventPresenceUpdate)
	if len(got) != 1 {
		t.Fatalf("want 1 update, got %d", len(got))
	}
	if p := got[0].Payload.(PresencePayload); p.Status != model.PresenceAway {
		t.Fatalf("want AWAY, got %s", p.Status)
	}
	// Repeating the same status is a no-op.
	h.HandleEvent(context.Background(), a, IncomingEvent{Type: EventSetPresence, Status: model.PresenceAway})
	if got := eventsOfType(drain(observer), EventPresenceUpdate); len(got) != 0 {
		t.Fatalf("repeated AWAY must be silent, got %d updates", len(got))
	}
}

func TestSetPresenceRejectsOffline(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice")
	h := newTestHub(store)

	a := connect(h, "alice")
	drain(a)

	h.HandleEvent(context.Background(), a, IncomingEvent{Type: EventSetPresence, Status: model.PresenceOffline})
	got := eventsOfType(drain(a), EventError)
	if len(got) != 1 {
		t.Fatalf("want validation error, got %v", got)
	}
	if p := got[0].Payload.(ErrorPayload); p.Code != ErrCodeValidation {
		t.Fatalf("want %s, got %s", ErrCodeValidation, p.Code)
	}
}

func TestPresenceTableRefcount(t *testing.T) {
	pt := newPresenceTable()
	if !pt.connect("u") {
		t.Fatal("first connect must report the 0->1 transition")
	}
	if pt.connect("u") {
		t.Fatal("second connect must not")
	}
	if pt.disconnect("u") {
		t.Fatal("first disconnect with one left must not report last")
	}
	if !pt.disconnect("u") {
		t.Fatal("final disconnect must report last")
	}
	if got := pt.status("u"); got != model.PresenceOffline {
		t.Fatalf("disconnected identity must read OFFLINE, got %s", got)
	}
	// Fresh connect after full disconnect is a 0->1 transition again.
	if !pt.connect("u") {
		t.Fatal("reconnect after full disconnect must report the transition")
	}
}
