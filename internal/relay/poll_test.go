package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerDeliversOnce(t *testing.T) {
	var polls atomic.Int32
	p := &Poller{
		Poll: func(ctx context.Context, requestID string) (string, bool, error) {
			if requestID != "req-1" {
				t.Errorf("requestID = %q", requestID)
			}
			if polls.Add(1) < 3 {
				return "", false, nil
			}
			return "answer", true, nil
		},
		Logger:       quiet(),
		InitialDelay: time.Millisecond,
		Interval:     time.Millisecond,
		Horizon:      time.Second,
	}

	delivered := make(chan string, 2)
	p.Run(context.Background(), "req-1", func(msg string) { delivered <- msg })

	select {
	case msg := <-delivered:
		if msg != "answer" {
			t.Fatalf("delivered %q", msg)
		}
	default:
		t.Fatal("nothing delivered")
	}
	if len(delivered) != 0 {
		t.Fatal("delivered more than once")
	}
}

func TestPollerToleratesErrors(t *testing.T) {
	var polls atomic.Int32
	p := &Poller{
		Poll: func(ctx context.Context, requestID string) (string, bool, error) {
			if polls.Add(1) == 1 {
				return "", false, errors.New("transient")
			}
			return "ok", true, nil
		},
		Logger:       quiet(),
		InitialDelay: time.Millisecond,
		Interval:     time.Millisecond,
		Horizon:      time.Second,
	}
	delivered := make(chan string, 1)
	p.Run(context.Background(), "req-2", func(msg string) { delivered <- msg })
	if len(delivered) != 1 {
		t.Fatal("error stopped the loop before delivery")
	}
}

func TestPollerStopsAtHorizon(t *testing.T) {
	p := &Poller{
		Poll: func(ctx context.Context, requestID string) (string, bool, error) {
			return "", false, nil
		},
		Logger:       quiet(),
		InitialDelay: time.Millisecond,
		Interval:     time.Millisecond,
		Horizon:      30 * time.Millisecond,
	}
	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), "req-3", func(string) { t.Error("unexpected delivery") })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller ran past its horizon")
	}
}

func TestPollerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Poller{
		Poll:         func(context.Context, string) (string, bool, error) { return "", false, nil },
		Logger:       quiet(),
		InitialDelay: time.Hour,
	}
	done := make(chan struct{})
	go func() {
		p.Run(ctx, "req-4", func(string) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled context did not stop the poller")
	}
}
