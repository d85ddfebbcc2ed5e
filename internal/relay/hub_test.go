package relay

import (
	"testing"
	"time"
)

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe()
	defer cancel1()
	ch2, cancel2 := h.Subscribe()
	defer cancel2()

	if h.Subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", h.Subscribers())
	}
	h.Broadcast(Event{Type: EventResponse, Message: "hello"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Message != "hello" {
				t.Fatalf("subscriber %d got %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	cancel()
	cancel() // safe to call twice

	if h.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0 after cancel", h.Subscribers())
	}
	h.Broadcast(Event{Type: EventResponse, Message: "late"})
	select {
	case ev := <-ch:
		t.Fatalf("cancelled subscriber received %+v", ev)
	default:
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	slow, cancelSlow := h.Subscribe()
	defer cancelSlow()
	_ = slow // never drained

	fast, cancelFast := h.Subscribe()
	defer cancelFast()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Broadcast(Event{Type: EventResponse, Message: "m"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	// The fast subscriber still saw up to a buffer's worth.
	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber starved")
	}
}
