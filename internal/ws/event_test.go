package ws

import (
	"context"
	"testing"

	"github.com/conversa/internal/model"
)

func TestIncomingEventValidate(t *testing.T) {
	cases := []struct {
		name    string
		ev      IncomingEvent
		wantErr bool
	}{
		{"join ok", IncomingEvent{Type: EventJoinRooms, ConversationIDs: []string{"c1"}}, false},
		{"join empty list", IncomingEvent{Type: EventJoinRooms}, true},
		{"join empty id", IncomingEvent{Type: EventJoinRooms, ConversationIDs: []string{""}}, true},
		{"leave ok", IncomingEvent{Type: EventLeaveRoom, ConversationID: "c1"}, false},
		{"leave missing id", IncomingEvent{Type: EventLeaveRoom}, true},
		{"presence online", IncomingEvent{Type: EventSetPresence, Status: model.PresenceOnline}, false},
		{"presence away", IncomingEvent{Type: EventSetPresence, Status: model.PresenceAway}, false},
		{"presence offline rejected", IncomingEvent{Type: EventSetPresence, Status: model.PresenceOffline}, true},
		{"presence garbage", IncomingEvent{Type: EventSetPresence, Status: "SLEEPING"}, true},
		{"send ok", IncomingEvent{Type: EventSendMessage, ConversationID: "c1", Content: "hi"}, false},
		{"send no content", IncomingEvent{Type: EventSendMessage, ConversationID: "c1"}, true},
		{"send bad content type", IncomingEvent{Type: EventSendMessage, ConversationID: "c1", Content: "hi", ContentType: "GIF"}, true},
		{"send typed", IncomingEvent{Type: EventSendMessage, ConversationID: "c1", Content: "x", ContentType: model.ContentTypeImage}, false},
		{"edit missing content", IncomingEvent{Type: EventEditMessage, MessageID: "m1"}, true},
		{"delete ok", IncomingEvent{Type: EventDeleteMessage, MessageID: "m1"}, false},
		{"react missing value", IncomingEvent{Type: EventReactToMessage, MessageID: "m1"}, true},
		{"thread ok", IncomingEvent{Type: EventGetThreadReplies, ParentID: "m1"}, false},
		{"thread missing parent", IncomingEvent{Type: EventGetThreadReplies}, true},
		{"unknown type", IncomingEvent{Type: "selfDestruct"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ev.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestUnknownEventKeepsConnectionAlive(t *testing.T) {
	store := newFakeStore()
	store.addUser("alice")
	h := newTestHub(store)
	a := connect(h, "alice")
	drain(a)

	h.HandleEvent(context.Background(), a, IncomingEvent{Type: "bogus"})

	errs := eventsOfType(drain(a), EventError)
	if len(errs) != 1 {
		t.Fatalf("want 1 error event, got %d", len(errs))
	}
	select {
	case <-a.done:
		t.Fatal("connection must stay alive after a malformed event")
	default:
	}
}
