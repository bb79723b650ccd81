package relay

import (
	"time"

	"github.com/sensorflow/sensorflow-core/internal/codec"
)

// Event types delivered to subscriber sessions.
const (
	EventStatus  = "status"
	EventHistory = "history"
	EventReading = "reading"
	EventError   = "error"
	EventResult  = "result"
)

// Event is the envelope for every message delivered to a subscriber.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// NewEvent wraps a payload in an envelope stamped with the current time.
func NewEvent(eventType string, payload any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// StatusPayload reports a connection state transition. The primary
// connection's status doubles as the overall broker status.
type StatusPayload struct {
	Connection string `json:"connection"`
	Status     string `json:"status"`
	Connected  bool   `json:"connected"`
	Message    string `json:"message,omitempty"`
}

// HistoryPayload replays a topic's buffered readings to a newly
// attached subscriber. Sent once per topic, before any live reading
// for that topic.
type HistoryPayload struct {
	Topic    string          `json:"topic"`
	Readings []codec.Reading `json:"readings"`
	Unit     string          `json:"unit"`
}

// ReadingPayload carries one live decoded reading.
type ReadingPayload struct {
	Topic   string        `json:"topic"`
	Payload codec.Reading `json:"payload"`
}

// ErrorPayload reports a per-message decode failure. Error events are
// never appended to history.
type ErrorPayload struct {
	Topic      string `json:"topic"`
	RawMessage string `json:"raw_message,omitempty"`
	Reason     string `json:"reason"`
}

// ResultPayload acknowledges a subscriber command.
type ResultPayload struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
