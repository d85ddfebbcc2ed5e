// Package relay brokers chat message submission and asynchronous reply
// delivery: outbound webhook submit, a server-sent-events broadcast hub, a
// per-conversation session state machine, and a polling fallback.
package relay

import "sync"

// Event types carried over the push channel. Anything else is ignored.
const (
	EventConnected = "connected"
	EventResponse  = "response"
)

// Event is one JSON-encoded frame on the push channel.
type Event struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

const subscriberBuffer = 16

// Hub fans inbound reply events out to every open stream. Broadcast is
// many-to-many: replies are not attributed to a specific subscriber.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new stream. The returned cancel must be called when
// the stream closes; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Broadcast delivers ev to every subscriber. A subscriber that has fallen
// more than a buffer behind misses the event rather than blocking delivery
// to the others.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the number of open streams.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
