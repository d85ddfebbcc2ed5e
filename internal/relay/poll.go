package relay

import (
	"context"
	"log"
	"time"
)

const (
	// Polling starts a minute after submission and runs for nine more, so
	// the combined submit+poll horizon matches the hard response timeout.
	defaultPollInitialDelay = time.Minute
	defaultPollInterval     = 5 * time.Second
	defaultPollHorizon      = 9 * time.Minute
)

// PollFunc asks the server whether a reply for the request exists yet.
// ok=false with a nil error means "not yet ready", which is not a failure.
type PollFunc func(ctx context.Context, requestID string) (message string, ok bool, err error)

// Poller is the best-effort fallback delivery path used when the push
// channel is unavailable. It is request-scoped and stops as soon as a reply
// is obtained, the context is cancelled, or the horizon elapses.
type Poller struct {
	Poll   PollFunc
	Logger *log.Logger

	InitialDelay time.Duration
	Interval     time.Duration
	Horizon      time.Duration
}

func (p *Poller) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// Run polls for requestID and invokes deliver with the reply text at most
// once. Transient poll errors are tolerated and the loop continues.
func (p *Poller) Run(ctx context.Context, requestID string, deliver func(message string)) {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = defaultPollInitialDelay
	}
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	horizon := p.Horizon
	if horizon <= 0 {
		horizon = defaultPollHorizon
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(initial):
	}

	deadline := time.NewTimer(horizon)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		msg, ok, err := p.Poll(ctx, requestID)
		if err != nil {
			p.logger().Printf("relay: poll for %s failed: %v", requestID, err)
		} else if ok {
			deliver(msg)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}
