package ws

import (
	"context"
	"testing"
)

func react(h *Hub, c *Client, msgID, value string) {
	h.HandleEvent(context.Background(), c, IncomingEvent{
		Type: EventReactToMessage, MessageID: msgID, Reaction: value,
	})
}

func lastReactionSet(t *testing.T, c *Client) ReactionUpdatePayload {
	t.Helper()
	got := eventsOfType(drain(c), EventMessageReactionUpdate)
	if len(got) == 0 {
		t.Fatal("want a reaction update")
	}
	return got[len(got)-1].Payload.(ReactionUpdatePayload)
}

func TestReactionToggleLaw(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "react to me")
	msgID, _ := lastMessageID(store, "c1")
	drain(clients["alice"])
	drain(clients["bob"])

	// No reaction yet: create.
	react(h, clients["bob"], msgID, "❤️")
	set := lastReactionSet(t, clients["alice"])
	if len(set.Reactions) != 1 || set.Reactions[0].Value != "❤️" {
		t.Fatalf("want [❤️], got %+v", set.Reactions)
	}
	drain(clients["bob"])

	// Different value: replace, never two reactions per identity.
	react(h, clients["bob"], msgID, "👍")
	set = lastReactionSet(t, clients["alice"])
	if len(set.Reactions) != 1 || set.Reactions[0].Value != "👍" {
		t.Fatalf("want replaced [👍], got %+v", set.Reactions)
	}
	drain(clients["bob"])

	// Same value again: toggle off.
	react(h, clients["bob"], msgID, "👍")
	set = lastReactionSet(t, clients["alice"])
	if len(set.Reactions) != 0 {
		t.Fatalf("want empty set after toggle, got %+v", set.Reactions)
	}
}

func TestReactionSetIncludesAllIdentities(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "popular")
	msgID, _ := lastMessageID(store, "c1")
	drain(clients["alice"])
	drain(clients["bob"])

	react(h, clients["alice"], msgID, "🎉")
	react(h, clients["bob"], msgID, "❤️")

	set := lastReactionSet(t, clients["alice"])
	if len(set.Reactions) != 2 {
		t.Fatalf("want both reactions in the authoritative set, got %+v", set.Reactions)
	}
}

func TestReactToMissingMessage(t *testing.T) {
	h, _, clients := setupConversation(t, "alice")

	react(h, clients["alice"], "no-such-id", "❤️")
	errs := eventsOfType(drain(clients["alice"]), EventError)
	if len(errs) != 1 || errs[0].Payload.(ErrorPayload).Code != ErrCodeForbiddenOrNotFound {
		t.Fatalf("want %s error, got %v", ErrCodeForbiddenOrNotFound, errs)
	}
}

func TestReadMessages(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "one")
	sendText(h, clients["alice"], "c1", "two")
	drain(clients["alice"])
	drain(clients["bob"])

	if got := store.unreadCount("c1", "bob"); got != 2 {
		t.Fatalf("precondition: bob unread 2, got %d", got)
	}

	h.HandleEvent(context.Background(), clients["bob"], IncomingEvent{
		Type: EventReadMessages, ConversationID: "c1",
	})

	if got := store.receiptCount("bob"); got != 2 {
		t.Fatalf("want 2 receipts, got %d", got)
	}
	if got := store.unreadCount("c1", "bob"); got != 0 {
		t.Fatalf("want unread reset, got %d", got)
	}

	// Other subscribers get the hint, the reader's own connection does not.
	got := eventsOfType(drain(clients["alice"]), EventMessagesRead)
	if len(got) != 1 {
		t.Fatalf("want 1 messagesRead, got %d", len(got))
	}
	p := got[0].Payload.(MessagesReadPayload)
	if p.UserID != "bob" || p.ConversationID != "c1" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if got := eventsOfType(drain(clients["bob"]), EventMessagesRead); len(got) != 0 {
		t.Fatalf("reader's connection must not get the hint, got %d", len(got))
	}
}

func TestReadMessagesReachesReadersOtherDevices(t *testing.T) {
	h, _, clients := setupConversation(t, "alice", "bob")

	// Second device of the reader, connected but never joined the room.
	bob2 := connect(h, "bob")
	drain(bob2)

	sendText(h, clients["alice"], "c1", "hi")
	drain(clients["alice"])
	drain(clients["bob"])

	h.HandleEvent(context.Background(), clients["bob"], IncomingEvent{
		Type: EventReadMessages, ConversationID: "c1",
	})

	if got := eventsOfType(drain(bob2), EventMessagesRead); len(got) != 1 {
		t.Fatalf("unsubscribed second device must get the badge-clear hint, got %d", len(got))
	}
	if got := eventsOfType(drain(clients["bob"]), EventMessagesRead); len(got) != 0 {
		t.Fatalf("originating device must not get the hint, got %d", len(got))
	}
	if got := eventsOfType(drain(clients["alice"]), EventMessagesRead); len(got) != 1 {
		t.Fatalf("other subscribers still get exactly one hint, got %d", len(got))
	}
}

func TestReadMessagesIdempotent(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "once")
	drain(clients["bob"])

	h.HandleEvent(context.Background(), clients["bob"], IncomingEvent{Type: EventReadMessages, ConversationID: "c1"})
	h.HandleEvent(context.Background(), clients["bob"], IncomingEvent{Type: EventReadMessages, ConversationID: "c1"})

	if got := store.receiptCount("bob"); got != 1 {
		t.Fatalf("replay must not duplicate receipts, got %d", got)
	}
}

func TestReadMessagesNeverReceiptsOwnMessages(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "mine")
	drain(clients["alice"])

	h.HandleEvent(context.Background(), clients["alice"], IncomingEvent{Type: EventReadMessages, ConversationID: "c1"})

	if got := store.receiptCount("alice"); got != 0 {
		t.Fatalf("sender must never receipt own messages, got %d", got)
	}
}
