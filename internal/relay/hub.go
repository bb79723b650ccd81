package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/sensorflow/sensorflow-core/internal/broker"
	"github.com/sensorflow/sensorflow-core/internal/codec"
	"github.com/sensorflow/sensorflow-core/internal/history"
	"github.com/sensorflow/sensorflow-core/internal/infrastructure/logging"
)

// defaultSendBuffer is the per-session outbound event buffer size.
const defaultSendBuffer = 256

// Brokers is the slice of the connection registry the hub needs:
// command delegation and state snapshots. Satisfied by
// registry.Registry.
type Brokers interface {
	Register(ctx context.Context, name, endpoint string) error
	Unregister(ctx context.Context, name string) error
	States() map[string]broker.State
	PublishControl(device string, payload []byte) error
}

// Sink receives every accepted reading for export. Writes are
// fire-and-forget; the sink is never consulted for replay.
type Sink interface {
	WriteReading(topic string, reading codec.Reading)
}

// Config holds hub tuning parameters.
type Config struct {
	// Topics derives a device's namespace for history purges.
	Topics broker.Topics

	// SendBuffer is the per-session event buffer size. Zero means
	// the default.
	SendBuffer int
}

// Hub is the central fan-out point. Every decoded reading, decode
// error, and connection state change funnels through the hub, which
// appends readings to history and broadcasts events to all attached
// sessions.
//
// One mutex serialises history appends, broadcasts, and session
// attach/detach. Holding it across a new session's history replay is
// what guarantees the replay-before-live ordering: no live event for a
// topic can be broadcast between the replay of that topic and the
// session joining the live set. Sends into session buffers never
// block, so the critical section stays short.
type Hub struct {
	cfg     Config
	logger  *logging.Logger
	store   *history.Store
	brokers Brokers
	sink    Sink

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewHub creates a hub. The sink may be nil to disable export.
func NewHub(store *history.Store, brokers Brokers, sink Sink, cfg Config, logger *logging.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		brokers:  brokers,
		sink:     sink,
		sessions: make(map[*Session]struct{}),
	}
}

// OnReading appends a decoded reading to history and broadcasts it.
// Wired as the broker.Handlers.OnReading callback for every connection.
func (h *Hub) OnReading(topic string, reading codec.Reading) {
	data, ok := h.marshal(NewEvent(EventReading, ReadingPayload{
		Topic:   topic,
		Payload: reading,
	}))
	if !ok {
		return
	}

	h.mu.Lock()
	h.store.Append(topic, reading)
	h.broadcastLocked(data)
	h.mu.Unlock()

	if h.sink != nil {
		h.sink.WriteReading(topic, reading)
	}
}

// OnDecodeError broadcasts a per-message failure as an error event.
// History is not touched.
func (h *Hub) OnDecodeError(topic string, err error) {
	payload := ErrorPayload{
		Topic:  topic,
		Reason: err.Error(),
	}
	var valErr *codec.ValidationError
	if errors.As(err, &valErr) {
		payload.RawMessage = valErr.RawMessage
		payload.Reason = valErr.Reason
	}

	data, ok := h.marshal(NewEvent(EventError, payload))
	if !ok {
		return
	}

	h.mu.Lock()
	h.broadcastLocked(data)
	h.mu.Unlock()
}

// OnStateChange broadcasts a connection state transition as a status
// event.
func (h *Hub) OnStateChange(name string, state broker.State) {
	data, ok := h.marshal(NewEvent(EventStatus, statusPayload(name, state)))
	if !ok {
		return
	}

	h.mu.Lock()
	h.broadcastLocked(data)
	h.mu.Unlock()
}

// Attach creates a session, primes it with a status snapshot for every
// connection and a history replay for every topic, and joins it to the
// live broadcast set. All three steps happen under the hub lock, so the
// session cannot observe a live reading for a topic before that topic's
// replay.
func (h *Hub) Attach() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := newSession(h.cfg.SendBuffer)

	states := h.brokers.States()
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if data, ok := h.marshal(NewEvent(EventStatus, statusPayload(name, states[name]))); ok {
			s.trySend(data)
		}
	}

	for _, topic := range h.store.Topics() {
		payload := HistoryPayload{
			Topic:    topic,
			Readings: h.store.Snapshot(topic),
			Unit:     h.store.Unit(topic),
		}
		if data, ok := h.marshal(NewEvent(EventHistory, payload)); ok {
			s.trySend(data)
		}
	}

	h.sessions[s] = struct{}{}
	h.logger.Debug("session attached", "session", s.ID(), "sessions", len(h.sessions))
	return s
}

// Detach removes a session from the broadcast set and closes its
// channel. Only the caller that actually removes the session closes
// the channel, so concurrent detaches cannot double-close.
func (h *Hub) Detach(s *Session) {
	h.mu.Lock()
	_, existed := h.sessions[s]
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()

	if existed {
		close(s.send)
		h.logger.Debug("session detached", "session", s.ID(), "sessions", count)
	}
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// SetDeviceEnabled publishes an enable/disable control message to the
// device's control topic.
func (h *Hub) SetDeviceEnabled(device string, enabled bool) error {
	payload, err := json.Marshal(map[string]bool{"enabled": enabled})
	if err != nil {
		return err
	}
	return h.brokers.PublishControl(device, payload)
}

// SetDeviceScale publishes a scale adjustment to the device's control
// topic.
func (h *Hub) SetDeviceScale(device string, scale float64) error {
	payload, err := json.Marshal(map[string]float64{"scale": scale})
	if err != nil {
		return err
	}
	return h.brokers.PublishControl(device, payload)
}

// RegisterDevice adds a dynamic broker registration.
func (h *Hub) RegisterDevice(ctx context.Context, name, endpoint string) error {
	return h.brokers.Register(ctx, name, endpoint)
}

// UnregisterDevice removes a registration and purges the device's
// topic namespace from history. The purge runs even when the
// registration is already gone, so repeated unregisters converge on
// the same end state.
func (h *Hub) UnregisterDevice(ctx context.Context, name string) error {
	err := h.brokers.Unregister(ctx, name)

	h.mu.Lock()
	purged := h.store.PurgePrefix(h.cfg.Topics.DeviceNamespace(name))
	h.mu.Unlock()

	if len(purged) > 0 {
		h.logger.Info("history purged", "device", name, "topics", len(purged))
	}
	return err
}

// Close detaches every session. Further broadcasts reach nobody.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.sessions {
		close(s.send)
		delete(h.sessions, s)
	}
}

// broadcastLocked fans data out to every session. Caller holds h.mu.
func (h *Hub) broadcastLocked(data []byte) {
	for s := range h.sessions {
		s.trySend(data)
	}
}

func (h *Hub) marshal(event Event) ([]byte, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshalling event", "type", event.Type, "error", err)
		return nil, false
	}
	return data, true
}

func statusPayload(name string, state broker.State) StatusPayload {
	return StatusPayload{
		Connection: name,
		Status:     state.Status.String(),
		Connected:  state.Live(),
		Message:    state.Reason,
	}
}
