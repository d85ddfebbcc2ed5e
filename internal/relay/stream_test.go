package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"prepcal/internal/domain"
)

func TestStreamClientDispatchesFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\",\"message\":\"ready\"}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: not json at all\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response\",\"message\":\"done\"}\n\n")
	}))
	defer srv.Close()

	events := make(chan Event, 8)
	c := NewStreamClient(srv.URL, func(ev Event) { events <- ev })
	c.Logger = quiet()
	if _, err := c.consume(context.Background()); err != nil {
		t.Fatalf("consume: %v", err)
	}

	var got []Event
	for len(events) > 0 {
		got = append(got, <-events)
	}
	if len(got) != 2 {
		t.Fatalf("dispatched %d events, want 2 (malformed and comments dropped): %+v", len(got), got)
	}
	if got[0].Type != EventConnected || got[1].Type != EventResponse || got[1].Message != "done" {
		t.Fatalf("events = %+v", got)
	}
}

func TestStreamClientMultilineData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"response\",\ndata: \"message\":\"two lines\"}\n\n")
	}))
	defer srv.Close()

	events := make(chan Event, 1)
	c := NewStreamClient(srv.URL, func(ev Event) { events <- ev })
	c.Logger = quiet()
	if _, err := c.consume(context.Background()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Message != "two lines" {
			t.Fatalf("event = %+v", ev)
		}
	default:
		t.Fatal("multiline data frame not dispatched")
	}
}

func TestStreamClientNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewStreamClient(srv.URL, nil)
	c.Logger = quiet()
	connected, err := c.consume(context.Background())
	se, ok := err.(*APIStatusError)
	if !ok || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v, want APIStatusError 502", err)
	}
	if connected {
		t.Fatal("rejected stream reported as connected")
	}
}

func TestStreamClientReconnectDeliversOnce(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if connects.Add(1) == 1 {
			// One reply, then the connection drops.
			fmt.Fprint(w, "data: {\"type\":\"response\",\"message\":\"done\"}\n\n")
			return
		}
		// Reconnects carry nothing; the reply must not be replayed.
	}))
	defer srv.Close()

	sub := &fakeSubmitter{}
	sess := newTestSession(sub, time.Minute)
	defer sess.Close()
	if err := sess.Send(context.Background(), "question"); err != nil {
		t.Fatalf("send: %v", err)
	}

	var dispatched atomic.Int32
	c := NewStreamClient(srv.URL, func(ev Event) {
		dispatched.Add(1)
		sess.HandleEvent(ev)
	})
	c.Logger = quiet()
	c.BaseDelay = 5 * time.Millisecond
	c.MaxDelay = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	if connects.Load() < 2 {
		t.Fatalf("connected %d times, want a reconnect after the drop", connects.Load())
	}
	if n := dispatched.Load(); n != 1 {
		t.Fatalf("dispatched %d frames across reconnects, want 1", n)
	}
	got := roles(sess.Messages())
	if len(got) != 2 || got[0] != domain.RoleUser || got[1] != domain.RoleAssistant {
		t.Fatalf("conversation roles = %v, want exactly one assistant reply", got)
	}
}

func TestStreamClientBackoffResetsAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var times []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()
		if n <= 5 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		// Accepted stream that closes immediately.
		if n >= 7 {
			cancel()
		}
	}))
	defer srv.Close()

	c := NewStreamClient(srv.URL, nil)
	c.Logger = quiet()
	c.BaseDelay = 10 * time.Millisecond
	c.MaxDelay = 300 * time.Millisecond
	c.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(times) < 7 {
		t.Fatalf("saw %d connects, want at least 7", len(times))
	}
	// Connect 6 is the first accepted stream; the delay before connect 7 must
	// be back near the base, not the escalated ceiling.
	if gap := times[6].Sub(times[5]); gap > 150*time.Millisecond {
		t.Fatalf("delay after successful reconnect = %s, want reset toward base", gap)
	}
}

func TestStreamClientReconnectsWithBackoff(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		// Close immediately; the client should come back.
	}))
	defer srv.Close()

	c := NewStreamClient(srv.URL, nil)
	c.Logger = quiet()
	c.BaseDelay = 5 * time.Millisecond
	c.MaxDelay = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	if n := connects.Load(); n < 3 {
		t.Fatalf("connected %d times, want at least 3", n)
	}
}
