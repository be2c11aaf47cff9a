package realtime

import (
	"encoding/json"
	"sync"

	"github.com/concord-chat/teamchat/internal/protocol"
)

// Handler receives the payload of one inbound event
type Handler func(data json.RawMessage)

// Subscriptions is the handler set of a single connection. Closing it drops
// every handler at once, so no event from a dead connection is delivered.
type Subscriptions struct {
	mu       sync.RWMutex
	handlers map[protocol.Event][]Handler
	closed   bool
}

// NewSubscriptions creates an empty handler set
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{handlers: make(map[protocol.Event][]Handler)}
}

// On adds a handler for event
func (s *Subscriptions) On(event protocol.Event, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handlers[event] = append(s.handlers[event], h)
}

// Dispatch delivers a frame to its handlers. It reports whether any ran.
func (s *Subscriptions) Dispatch(f *protocol.Frame) bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	hs := s.handlers[f.Event]
	s.mu.RUnlock()

	for _, h := range hs {
		h(f.Data)
	}
	return len(hs) > 0
}

// Close removes every handler
func (s *Subscriptions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.handlers = nil
}
