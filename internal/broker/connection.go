package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sensorflow/sensorflow-core/internal/codec"
)

// PrimaryName identifies the always-on connection to the default broker.
const PrimaryName = "primary"

// Logger is the logging interface consumed by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handlers receives the observable outputs of a connection.
//
// Handlers are invoked from paho's callback goroutines and from the
// connect loop; they must be safe for concurrent use and should not
// block for extended periods.
type Handlers struct {
	// OnReading receives each successfully decoded reading.
	OnReading func(topic string, reading codec.Reading)

	// OnDecodeError receives per-message decode failures
	// (*codec.DecryptionError or *codec.ValidationError). Failures are
	// isolated to the message; the connection keeps running.
	OnDecodeError func(topic string, err error)

	// OnStateChange receives every connection state transition.
	// Transitions are never silently dropped while the connection is live.
	OnStateChange func(name string, state State)
}

// Connection wraps one session to one MQTT broker endpoint.
//
// It owns subscribe/publish, reconnection with bounded backoff, and the
// connection state machine. Inbound payloads are decoded with the
// injected codec before being handed to the Handlers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Connection struct {
	opts     Options
	codec    *codec.Codec
	handlers Handlers
	logger   Logger
	client   pahomqtt.Client

	mu     sync.Mutex
	state  State
	closed bool
	done   chan struct{}
}

// NewConnection creates a connection for the given endpoint.
//
// The connection is inert until Connect is called.
//
// Parameters:
//   - opts: Endpoint, identity, filter, and backoff settings
//   - c: Codec for inbound payloads
//   - handlers: Event sinks (may have nil fields)
//   - logger: Structured logger
//
// Returns:
//   - *Connection: Ready to connect
//   - error: ErrInvalidEndpoint or invalid option values
func NewConnection(opts Options, c *codec.Codec, handlers Handlers, logger Logger) (*Connection, error) {
	if opts.QoS > maxQoS {
		return nil, fmt.Errorf("broker: invalid QoS %d (must be 0, 1, or 2)", opts.QoS)
	}
	if opts.Filter == "" {
		return nil, fmt.Errorf("%w: empty subscription filter", ErrInvalidTopic)
	}

	brokerURL, err := ParseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		opts:     opts,
		codec:    c,
		handlers: handlers,
		logger:   logger,
		state:    State{Status: StatusConnecting},
		done:     make(chan struct{}),
	}

	pOpts := buildClientOptions(opts, brokerURL)
	pOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		conn.handleConnect()
	})
	pOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		conn.handleLost(err)
	})
	pOpts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		conn.apply(eventRetry, "")
	})
	// The connect loop owns initial-attempt retries so failures surface
	// as Error -> Reconnecting transitions; paho only retries sessions
	// that were established at least once.
	pOpts.SetConnectRetry(false)

	conn.client = pahomqtt.NewClient(pOpts)
	return conn, nil
}

// Name returns the connection's identity used in status events.
func (c *Connection) Name() string {
	return c.opts.Name
}

// Endpoint returns the configured (unparsed) broker endpoint.
func (c *Connection) Endpoint() string {
	return c.opts.Endpoint
}

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection attempt and returns immediately.
//
// Connection establishment is asynchronous: progress is observable via
// OnStateChange. Failed attempts are retried indefinitely with
// exponential backoff capped at ReconnectMax, until the context is
// cancelled or Disconnect is called.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.apply(eventConnect, "")
	go c.connectLoop(ctx)
	return nil
}

// connectLoop drives initial connection attempts until one succeeds.
// Once a session is established, paho's auto-reconnect takes over for
// subsequent drops.
func (c *Connection) connectLoop(ctx context.Context) {
	delay := c.opts.ReconnectInitial
	if delay <= 0 {
		delay = defaultReconnectInitial
	}
	maxDelay := c.opts.ReconnectMax
	if maxDelay <= 0 {
		maxDelay = defaultReconnectMax
	}

	for {
		if c.isClosed() {
			return
		}

		token := c.client.Connect()
		if token.WaitTimeout(defaultConnectTimeout) {
			if token.Error() == nil {
				// Connected; handleConnect has already run via the
				// OnConnect callback.
				return
			}
			c.apply(eventLost, token.Error().Error())
		} else {
			c.apply(eventLost, fmt.Sprintf("connect timeout after %v", defaultConnectTimeout))
		}
		c.apply(eventRetry, "")

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.logger.Info("connect loop cancelled", "connection", c.opts.Name)
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// handleConnect runs on every established session (initial and reconnect).
func (c *Connection) handleConnect() {
	if c.isClosed() {
		return
	}

	c.apply(eventConnected, "")

	if err := c.subscribe(); err != nil {
		c.logger.Error("subscription failed after connect",
			"connection", c.opts.Name,
			"filter", c.opts.Filter,
			"error", err,
		)
	}
}

// handleLost runs when an established session drops. All failure classes
// (network error, broker unreachable, auth failure) surface as
// Error(reason) feeding back into Reconnecting.
func (c *Connection) handleLost(err error) {
	if c.isClosed() {
		return
	}

	reason := "connection lost"
	if err != nil {
		reason = err.Error()
	}
	c.apply(eventLost, reason)
	c.apply(eventRetry, "")
}

// subscribe (re)establishes the reading subscription for this connection.
func (c *Connection) subscribe() error {
	token := c.client.Subscribe(c.opts.Filter, c.opts.QoS, c.messageHandler)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.logger.Info("subscribed",
		"connection", c.opts.Name,
		"filter", c.opts.Filter,
	)
	return nil
}

// messageHandler decodes one inbound message and dispatches it.
// Per-message failures are reported, never fatal to the connection.
func (c *Connection) messageHandler(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panic recovered",
				"connection", c.opts.Name,
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	if c.isClosed() {
		return
	}

	topic := msg.Topic()
	if IsControl(topic) {
		// Control echoes are commands we (or another controller)
		// published; they carry no reading.
		c.logger.Debug("control echo skipped", "topic", topic)
		return
	}

	reading, err := c.codec.Decode(topic, msg.Payload())
	if err != nil {
		if c.handlers.OnDecodeError != nil {
			c.handlers.OnDecodeError(topic, err)
		}
		return
	}

	if c.handlers.OnReading != nil {
		c.handlers.OnReading(topic, reading)
	}
}

// PublishControl sends a control payload to a device's control topic.
//
// Best-effort with a bounded timeout; the error is returned to the
// caller only and triggers no broadcast.
func (c *Connection) PublishControl(device string, payload []byte) error {
	if device == "" {
		return fmt.Errorf("%w: empty device name", ErrInvalidTopic)
	}
	return c.Publish(c.opts.Topics.Control(device), payload)
}

// Publish sends a payload to a topic with the connection's QoS.
func (c *Connection) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if c.isClosed() {
		return ErrClosed
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.opts.QoS, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// Disconnect tears the connection down gracefully: it stops the
// reconnect loop, unsubscribes, closes the transport, and suppresses
// all further events. Idempotent.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state, _ = transition(c.state, eventDisconnect, "")
	c.mu.Unlock()

	close(c.done)

	if c.client.IsConnected() {
		token := c.client.Unsubscribe(c.opts.Filter)
		token.WaitTimeout(defaultSubscribeTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.logger.Info("disconnected", "connection", c.opts.Name)
}

// isClosed reports whether Disconnect has been called.
func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// apply feeds an event through the state machine and emits the
// transition if it is observable and the connection is still live.
func (c *Connection) apply(ev event, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	next, ok := transition(c.state, ev, reason)
	if ok {
		c.state = next
	}
	handler := c.handlers.OnStateChange
	c.mu.Unlock()

	if ok && handler != nil {
		handler(c.opts.Name, next)
	}
}
