package ws

import (
	"context"
	"testing"

	"github.com/conversa/internal/model"
)

func setupConversation(t *testing.T, users ...string) (*Hub, *fakeStore, map[string]*Client) {
	t.Helper()
	store := newFakeStore()
	h := newTestHub(store)
	clients := make(map[string]*Client, len(users))
	for _, u := range users {
		store.addUser(u)
		store.participants["c1"] = append(store.participants["c1"], u)
		c := connect(h, u)
		joinConv(h, c, "c1")
		clients[u] = c
	}
	for _, c := range clients {
		drain(c)
	}
	return h, store, clients
}

func TestSendMessageFanout(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "hello")

	for _, u := range []string{"alice", "bob"} {
		got := eventsOfType(drain(clients[u]), EventNewMessage)
		if len(got) != 1 {
			t.Fatalf("%s: want 1 newMessage, got %d", u, len(got))
		}
		m := got[0].Payload.(*model.Message)
		if m.Content != "hello" || m.SenderID != "alice" || m.Seq != 1 {
			t.Fatalf("%s: unexpected message %+v", u, m)
		}
		if m.ContentType != model.ContentTypeText {
			t.Fatalf("%s: want default TEXT, got %s", u, m.ContentType)
		}
		if m.Sender == nil || m.Sender.Username != "alice" {
			t.Fatalf("%s: sender not enriched: %+v", u, m.Sender)
		}
	}

	if got := store.unreadCount("c1", "bob"); got != 1 {
		t.Fatalf("bob unread: want 1, got %d", got)
	}
	if got := store.unreadCount("c1", "alice"); got != 0 {
		t.Fatalf("sender unread must stay 0, got %d", got)
	}
	if _, err := lastMessageID(store, "c1"); err != nil {
		t.Fatalf("last message pointer not set: %v", err)
	}
}

func TestSendMessageSeqOrder(t *testing.T) {
	h, _, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "first")
	sendText(h, clients["bob"], "c1", "second")

	got := eventsOfType(drain(clients["alice"]), EventNewMessage)
	if len(got) != 2 {
		t.Fatalf("want 2 messages, got %d", len(got))
	}
	first := got[0].Payload.(*model.Message)
	second := got[1].Payload.(*model.Message)
	if first.Seq >= second.Seq {
		t.Fatalf("delivery order must follow seq: %d then %d", first.Seq, second.Seq)
	}
	if first.Content != "first" || second.Content != "second" {
		t.Fatalf("messages out of order: %q, %q", first.Content, second.Content)
	}
}

func TestEditMessageOwnerOnly(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "original")
	msgID, _ := lastMessageID(store, "c1")
	drain(clients["alice"])
	drain(clients["bob"])

	// Foreign edit fails with the uniform code.
	h.HandleEvent(context.Background(), clients["bob"], IncomingEvent{
		Type: EventEditMessage, MessageID: msgID, Content: "hijacked",
	})
	errs := eventsOfType(drain(clients["bob"]), EventError)
	if len(errs) != 1 || errs[0].Payload.(ErrorPayload).Code != ErrCodeForbiddenOrNotFound {
		t.Fatalf("want %s error, got %v", ErrCodeForbiddenOrNotFound, errs)
	}
	if got := eventsOfType(drain(clients["alice"]), EventMessageUpdated); len(got) != 0 {
		t.Fatalf("failed edit must not broadcast, got %d", len(got))
	}

	// Owner edit broadcasts to the whole room.
	h.HandleEvent(context.Background(), clients["alice"], IncomingEvent{
		Type: EventEditMessage, MessageID: msgID, Content: "fixed",
	})
	for _, u := range []string{"alice", "bob"} {
		got := eventsOfType(drain(clients[u]), EventMessageUpdated)
		if len(got) != 1 {
			t.Fatalf("%s: want 1 messageUpdated, got %d", u, len(got))
		}
		p := got[0].Payload.(MessageUpdatedPayload)
		if p.Content != "fixed" || p.ConversationID != "c1" {
			t.Fatalf("%s: unexpected payload %+v", u, p)
		}
	}
}

func TestDeleteMessageBroadcastsToConversation(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "to delete")
	msgID, _ := lastMessageID(store, "c1")
	drain(clients["alice"])
	drain(clients["bob"])

	h.HandleEvent(context.Background(), clients["alice"], IncomingEvent{
		Type: EventDeleteMessage, MessageID: msgID,
	})

	// Every participant's connection sees the deletion, not just the sender's.
	for _, u := range []string{"alice", "bob"} {
		got := eventsOfType(drain(clients[u]), EventMessageDeleted)
		if len(got) != 1 {
			t.Fatalf("%s: want 1 messageDeleted, got %d", u, len(got))
		}
		p := got[0].Payload.(MessageDeletedPayload)
		if p.MessageID != msgID || p.ConversationID != "c1" {
			t.Fatalf("%s: unexpected payload %+v", u, p)
		}
	}

	m, err := store.GetByID(context.Background(), msgID)
	if err != nil {
		t.Fatalf("tombstone must survive: %v", err)
	}
	if !m.IsDeleted || m.Content != "" {
		t.Fatalf("want cleared tombstone, got %+v", m)
	}
}

func TestThreadRepliesAndFanout(t *testing.T) {
	h, store, clients := setupConversation(t, "alice", "bob")

	sendText(h, clients["alice"], "c1", "root")
	rootID, _ := lastMessageID(store, "c1")
	drain(clients["alice"])
	drain(clients["bob"])

	// Bob opens the thread: implicit subscription plus the current replies.
	h.HandleEvent(context.Background(), clients["bob"], IncomingEvent{
		Type: EventGetThreadReplies, ParentID: rootID,
	})
	got := eventsOfType(drain(clients["bob"]), EventThreadReplies)
	if len(got) != 1 {
		t.Fatalf("want threadReplies response, got %d", len(got))
	}
	if p := got[0].Payload.(ThreadRepliesPayload); p.ParentID != rootID || len(p.Replies) != 0 {
		t.Fatalf("want empty thread, got %+v", p)
	}

	// Alice replies in the thread: bob gets both newMessage and newThreadReply.
	h.HandleEvent(context.Background(), clients["alice"], IncomingEvent{
		Type: EventSendMessage, ConversationID: "c1", Content: "reply", ParentID: rootID,
	})
	evs := drain(clients["bob"])
	if got := eventsOfType(evs, EventNewMessage); len(got) != 1 {
		t.Fatalf("want 1 newMessage, got %d", len(got))
	}
	threadEvs := eventsOfType(evs, EventNewThreadReply)
	if len(threadEvs) != 1 {
		t.Fatalf("want 1 newThreadReply, got %d", len(threadEvs))
	}
	reply := threadEvs[0].Payload.(*model.Message)
	if reply.ParentID == nil || *reply.ParentID != rootID {
		t.Fatalf("reply must carry parent id, got %+v", reply)
	}
	if reply.Parent == nil || reply.Parent.Content != "root" {
		t.Fatalf("reply must carry parent preview, got %+v", reply.Parent)
	}

	// Alice never opened the thread, so no newThreadReply for her.
	if got := eventsOfType(drain(clients["alice"]), EventNewThreadReply); len(got) != 0 {
		t.Fatalf("non-subscriber must not get thread events, got %d", len(got))
	}
}

func TestLeaveRoomStopsFanout(t *testing.T) {
	h, _, clients := setupConversation(t, "alice", "bob")

	h.HandleEvent(context.Background(), clients["bob"], IncomingEvent{
		Type: EventLeaveRoom, ConversationID: "c1",
	})
	sendText(h, clients["alice"], "c1", "after leave")

	if got := eventsOfType(drain(clients["bob"]), EventNewMessage); len(got) != 0 {
		t.Fatalf("left subscriber must not receive fanout, got %d", len(got))
	}
	if got := eventsOfType(drain(clients["alice"]), EventNewMessage); len(got) != 1 {
		t.Fatalf("remaining subscriber still receives, got %d", len(got))
	}
}
