package notify

import (
	"context"
	"testing"
	"time"
)

func TestPushAndList(t *testing.T) {
	c := NewCenter(time.Minute)

	c.Push(Success, "تم التحويل", "first")
	c.Push(Error, "خطأ", "second")

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	// Newest first: ids are time-ordered.
	if list[0].Message != "second" {
		t.Fatalf("order wrong: %+v", list)
	}
	if c.Unread() != 2 {
		t.Fatalf("unread = %d", c.Unread())
	}
}

func TestMarkRead(t *testing.T) {
	c := NewCenter(time.Minute)
	n := c.Push(Info, "t", "m")

	if !c.MarkRead(n.ID) {
		t.Fatal("mark read failed")
	}
	if c.Unread() != 0 {
		t.Fatalf("unread = %d", c.Unread())
	}
	if c.MarkRead("missing") {
		t.Fatal("unknown id reported as marked")
	}
}

func TestSubscribeDelivers(t *testing.T) {
	c := NewCenter(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.Subscribe(ctx)
	pushed := c.Push(Warning, "t", "m")

	select {
	case got := <-ch:
		if got.ID != pushed.ID {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	cancel()
	// Channel closes once the context ends.
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}
