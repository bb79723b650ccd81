package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sensorflow/sensorflow-core/internal/broker"
	"github.com/sensorflow/sensorflow-core/internal/codec"
)

// maxNameLength bounds device names so they stay usable as topic
// segments and client ID suffixes.
const maxNameLength = 64

// Options configures connections created by the Registry. The primary
// connection and every dynamically registered connection share the same
// codec, QoS, and reconnect policy; only endpoint and topic filter vary.
type Options struct {
	// Topics derives filters and control topics from the base namespace.
	Topics broker.Topics

	// QoS is the quality of service level for subscriptions (0-2).
	QoS byte

	// Username and Password authenticate the primary connection.
	// Registered endpoints connect anonymously.
	Username string
	Password string

	// ClientIDPrefix prefixes generated MQTT client IDs.
	ClientIDPrefix string

	// ReconnectInitial and ReconnectMax bound the reconnect backoff.
	// Zero values fall back to the broker package defaults.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// Registry manages the lifecycle of broker connections: the always-on
// primary connection plus zero or more dynamically registered device
// connections, each scoped to its own topic namespace.
//
// Registrations are persisted through a Repository so they survive
// restarts. All lifecycle operations are serialised by a single mutex,
// so concurrent register/unregister calls for the same name resolve to
// exactly one winner.
type Registry struct {
	opts     Options
	repo     Repository
	codec    *codec.Codec
	handlers broker.Handlers
	logger   broker.Logger

	mu      sync.Mutex
	runCtx  context.Context
	primary *broker.Connection
	devices map[string]*broker.Connection
	closed  bool
}

// New creates a registry. Connections are not opened until Start.
//
// Parameters:
//   - repo: Registration persistence (SQLite or memory)
//   - c: Payload codec shared by all connections
//   - handlers: Reading, decode error, and state change callbacks
//   - opts: Shared connection options
//   - logger: Structured logger
func New(repo Repository, c *codec.Codec, handlers broker.Handlers, opts Options, logger broker.Logger) *Registry {
	return &Registry{
		opts:     opts,
		repo:     repo,
		codec:    c,
		handlers: handlers,
		logger:   logger,
		devices:  make(map[string]*broker.Connection),
	}
}

// Start opens the primary connection and reconnects every persisted
// registration. The context bounds the lifetime of all connections,
// including ones registered later.
//
// Per-registration reconnect failures are logged and skipped; a device
// endpoint that cannot be restored must not take the service down.
//
// Returns:
//   - error: If already started/closed or the primary connection
//     cannot be constructed
func (r *Registry) Start(ctx context.Context, primaryEndpoint string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.primary != nil {
		r.mu.Unlock()
		return fmt.Errorf("registry: already started")
	}
	r.runCtx = ctx

	primary, err := r.newConnection(broker.PrimaryName, primaryEndpoint, r.opts.Topics.AllReadings(), true)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("creating primary connection: %w", err)
	}
	r.primary = primary
	r.mu.Unlock()

	if err := primary.Connect(ctx); err != nil {
		return fmt.Errorf("connecting primary: %w", err)
	}

	regs, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("restoring registrations: %w", err)
	}
	for _, reg := range regs {
		if err := r.attach(reg.Name, reg.Endpoint); err != nil {
			r.logger.Warn("skipping persisted registration",
				"name", reg.Name,
				"endpoint", reg.Endpoint,
				"error", err,
			)
		}
	}
	if len(regs) > 0 {
		r.logger.Info("registrations restored", "count", len(regs))
	}
	return nil
}

// Register adds a device broker and opens a connection scoped to the
// device's topic namespace. The name must be unique; the reserved
// primary name counts as taken.
//
// The registration is persisted before the connection is opened, so a
// crash between the two still restores the device on restart.
//
// Returns:
//   - error: ErrInvalidName, ErrAlreadyRegistered, broker.ErrInvalidEndpoint,
//     ErrNotStarted, ErrClosed, or a persistence failure
func (r *Registry) Register(ctx context.Context, name, endpoint string) error {
	if err := validateName(name); err != nil {
		return err
	}
	normalized, err := broker.ParseEndpoint(endpoint)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.runCtx == nil {
		return ErrNotStarted
	}
	if name == broker.PrimaryName {
		return fmt.Errorf("%w: %q is reserved", ErrAlreadyRegistered, name)
	}
	if _, ok := r.devices[name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}

	if err := r.repo.Create(ctx, Registration{
		Name:      name,
		Endpoint:  normalized,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	conn, err := r.newConnection(name, normalized, r.opts.Topics.DeviceReadings(name), false)
	if err != nil {
		// Roll the persisted row back so a later retry is not rejected
		// as a duplicate.
		if delErr := r.repo.Delete(ctx, name); delErr != nil {
			r.logger.Error("rolling back registration", "name", name, "error", delErr)
		}
		return err
	}

	r.devices[name] = conn
	if err := conn.Connect(r.runCtx); err != nil {
		r.logger.Warn("connecting registered broker", "name", name, "error", err)
	}

	r.logger.Info("broker registered", "name", name, "endpoint", normalized)
	return nil
}

// Unregister removes a device registration, closes its connection, and
// deletes the persisted row. After Unregister returns, the connection
// emits no further readings, errors, or state changes.
//
// Returns:
//   - error: ErrPrimary for the reserved name, ErrNotFound if the name
//     has no registration, ErrClosed after Close
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if name == broker.PrimaryName {
		return ErrPrimary
	}
	conn, ok := r.devices[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if err := r.repo.Delete(ctx, name); err != nil {
		return err
	}
	conn.Disconnect()
	delete(r.devices, name)

	r.logger.Info("broker unregistered", "name", name)
	return nil
}

// Names returns the registered device names in sorted order. The
// primary connection is not included.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// States returns a snapshot of every connection's state, keyed by name.
// The primary connection is included under broker.PrimaryName.
func (r *Registry) States() map[string]broker.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]broker.State, len(r.devices)+1)
	if r.primary != nil {
		states[broker.PrimaryName] = r.primary.State()
	}
	for name, conn := range r.devices {
		states[name] = conn.State()
	}
	return states
}

// Endpoint returns the normalised endpoint of a registration.
// Returns ErrNotFound if the name is not registered.
func (r *Registry) Endpoint(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == broker.PrimaryName && r.primary != nil {
		return r.primary.Endpoint(), nil
	}
	conn, ok := r.devices[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return conn.Endpoint(), nil
}

// PublishControl sends a control payload to a device's control topic.
// Registered devices receive it on their own broker; everything else
// goes through the primary connection.
func (r *Registry) PublishControl(device string, payload []byte) error {
	r.mu.Lock()
	conn, ok := r.devices[device]
	if !ok {
		conn = r.primary
	}
	r.mu.Unlock()

	if conn == nil {
		return ErrNotStarted
	}
	return conn.PublishControl(device, payload)
}

// Close disconnects every connection and rejects further operations.
// It is safe to call multiple times.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for name, conn := range r.devices {
		conn.Disconnect()
		delete(r.devices, name)
	}
	if r.primary != nil {
		r.primary.Disconnect()
	}
	r.logger.Info("registry closed")
}

// attach creates and connects a device connection without touching the
// repository. Used for restoring persisted registrations. Caller must
// not hold r.mu.
func (r *Registry) attach(name, endpoint string) error {
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.devices[name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}

	conn, err := r.newConnection(name, endpoint, r.opts.Topics.DeviceReadings(name), false)
	if err != nil {
		return err
	}
	r.devices[name] = conn
	return conn.Connect(r.runCtx)
}

// newConnection builds a broker.Connection with the registry's shared
// codec, handlers, and reconnect policy. Credentials only apply to the
// primary connection.
func (r *Registry) newConnection(name, endpoint, filter string, primary bool) (*broker.Connection, error) {
	opts := broker.Options{
		Name:             name,
		Endpoint:         endpoint,
		ClientID:         r.opts.ClientIDPrefix + "-" + name,
		QoS:              r.opts.QoS,
		Filter:           filter,
		Topics:           r.opts.Topics,
		ReconnectInitial: r.opts.ReconnectInitial,
		ReconnectMax:     r.opts.ReconnectMax,
	}
	if primary {
		opts.Username = r.opts.Username
		opts.Password = r.opts.Password
	}
	return broker.NewConnection(opts, r.codec, r.handlers, r.logger)
}

// validateName rejects names that cannot serve as a topic segment.
func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, maxNameLength)
	case strings.ContainsAny(name, "/+#"):
		return fmt.Errorf("%w: %q contains topic metacharacters", ErrInvalidName, name)
	case strings.ContainsAny(name, " \t\r\n"):
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
	}
	return nil
}
