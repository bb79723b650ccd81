package relay

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Session is one live viewer attached to the hub. It holds no
// authoritative data, only a bounded delivery channel drained by the
// transport layer (the WebSocket write pump).
type Session struct {
	id   string
	send chan []byte
}

func newSession(buffer int) *Session {
	return &Session{
		id:   uuid.NewString(),
		send: make(chan []byte, buffer),
	}
}

// ID returns the session's unique identifier, used for logging.
func (s *Session) ID() string {
	return s.id
}

// Events returns the channel of marshalled events for this session.
// The hub closes it on detach; consumers must treat a closed channel
// as session end.
func (s *Session) Events() <-chan []byte {
	return s.send
}

// Deliver marshals an event and queues it for this session only.
// Used for command acknowledgements that should not be broadcast.
func (s *Session) Deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.trySend(data)
}

// trySend queues data without blocking. A full buffer means the
// consumer is too slow; the event is dropped rather than stalling the
// hub. Sends racing a close are absorbed.
func (s *Session) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case s.send <- data:
	default:
		// Session buffer full, skip
	}
}
