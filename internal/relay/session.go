package relay

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"prepcal/internal/domain"
)

// State of the conversation relay. Delivery and timeout are transitions back
// to idle, not resting states.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateAwaiting   State = "awaiting"
)

// DefaultResponseTimeout is the hard bound on waiting for a reply.
const DefaultResponseTimeout = 10 * time.Minute

const timeoutNotice = "Your request is still being processed by the workflow services. I'll update you when it's ready!"

// Submitter delivers an outbound message to the external workflow system.
type Submitter interface {
	Submit(ctx context.Context, message string) error
}

// SessionConfig wires a Session's collaborators. Only Submit is required.
type SessionConfig struct {
	Submit          Submitter
	ResponseTimeout time.Duration
	Now             func() time.Time
	// Speak, when set, is invoked with each delivered reply text
	// (text-to-speech side channel).
	Speak  func(text string)
	Logger *log.Logger
}

// Session owns one conversation panel's state: the append-only message list
// and any armed response timeouts. Close releases every timer.
//
// Replies are not correlated to requests: the first inbound reply answers
// whatever is currently awaiting. A second Send while one request is pending
// arms a second, independent timeout.
type Session struct {
	cfg SessionConfig

	mu       sync.Mutex
	state    State
	messages []domain.ChatMessage
	pending  []*pendingTimer
	closed   bool
}

type pendingTimer struct {
	timer *time.Timer
}

// NewSession builds an idle session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{cfg: cfg, state: StateIdle}
}

func (s *Session) logger() *log.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return log.Default()
}

// Send submits a user message. Empty or whitespace-only input is ignored
// without contacting the network. The user message is appended
// optimistically before the submission is attempted; a failed submission
// appends one local notice and leaves the session idle.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.append(domain.RoleUser, text)
	s.state = StateSubmitting
	s.mu.Unlock()

	err := s.cfg.Submit.Submit(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	if err != nil {
		s.logger().Printf("relay: submission failed: %v", err)
		s.append(domain.RoleSystem, "Could not reach the assistant. Please try sending your message again.")
		s.state = StateIdle
		return err
	}
	s.state = StateAwaiting
	p := &pendingTimer{}
	p.timer = time.AfterFunc(s.cfg.ResponseTimeout, func() { s.expire(p) })
	s.pending = append(s.pending, p)
	return nil
}

// HandleEvent feeds one push-channel frame into the session. Keep-alive
// frames and payloads missing a message are dropped silently.
func (s *Session) HandleEvent(ev Event) {
	if ev.Type != EventResponse || ev.Message == "" {
		return
	}
	s.deliver(ev.Message)
}

// deliver appends exactly one assistant message and cancels the oldest armed
// timeout, if any.
func (s *Session) deliver(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.pending) > 0 {
		p := s.pending[0]
		s.pending = s.pending[1:]
		p.timer.Stop()
	}
	s.append(domain.RoleAssistant, text)
	s.state = StateIdle
	speak := s.cfg.Speak
	s.mu.Unlock()

	if speak != nil {
		speak(text)
	}
}

// expire is the timeout path: a terminal giving-up, not a retry.
func (s *Session) expire(p *pendingTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	found := false
	for i, q := range s.pending {
		if q == p {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		// A reply won the race and already cancelled this timer.
		return
	}
	s.append(domain.RoleAssistant, timeoutNotice)
	s.state = StateIdle
}

func (s *Session) append(role domain.ChatRole, text string) {
	now := s.cfg.Now()
	s.messages = append(s.messages, domain.ChatMessage{
		ID:        domain.NewMessageID(now),
		Role:      role,
		Text:      text,
		CreatedAt: now,
	})
}

// Messages returns a snapshot of the conversation in append order.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// State reports the current relay state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops every armed timer. The session ignores all input afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = nil
	s.state = StateIdle
}
