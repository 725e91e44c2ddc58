package ws

import "testing"

func TestRoomJoinIdempotent(t *testing.T) {
	rt := newRoomTable()
	c := &Client{}
	rt.join(c, "conversation:c1")
	rt.join(c, "conversation:c1")
	if got := len(rt.subscribers("conversation:c1")); got != 1 {
		t.Fatalf("want 1 subscriber after double join, got %d", got)
	}
}

func TestRoomLeaveIdempotent(t *testing.T) {
	rt := newRoomTable()
	c := &Client{}
	rt.join(c, "conversation:c1")
	rt.leave(c, "conversation:c1")
	rt.leave(c, "conversation:c1")
	rt.leave(c, "conversation:never-joined")
	if got := len(rt.subscribers("conversation:c1")); got != 0 {
		t.Fatalf("want 0 subscribers, got %d", got)
	}
}

func TestRoomLeaveAll(t *testing.T) {
	rt := newRoomTable()
	c := &Client{}
	other := &Client{}
	rt.join(c, "conversation:c1")
	rt.join(c, "thread:m1")
	rt.join(other, "conversation:c1")

	left := rt.leaveAll(c)
	if len(left) != 2 {
		t.Fatalf("want 2 rooms left, got %v", left)
	}
	if rt.contains("conversation:c1", c) || rt.contains("thread:m1", c) {
		t.Fatal("client must be detached from all rooms")
	}
	if !rt.contains("conversation:c1", other) {
		t.Fatal("other subscribers must be unaffected")
	}
	// Second call finds nothing.
	if left := rt.leaveAll(c); len(left) != 0 {
		t.Fatalf("repeated leaveAll must be empty, got %v", left)
	}
}
