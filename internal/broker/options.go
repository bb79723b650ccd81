package broker

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the per-attempt connection timeout.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultSubscribeTimeout is the maximum time to wait for subscribe acknowledgment.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultReconnectInitial and defaultReconnectMax bound the retry
	// backoff when the Options leave them unset.
	defaultReconnectInitial = 1 * time.Second
	defaultReconnectMax     = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options configures one broker connection.
type Options struct {
	// Name identifies the connection in status events. The always-on
	// connection uses PrimaryName; dynamic connections use the
	// registered device name.
	Name string

	// Endpoint is the broker address: "host", "host:port", or a URL
	// with a tcp/mqtt/ssl/mqtts/ws/wss scheme.
	Endpoint string

	// ClientID identifies this client to the broker.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// QoS is the quality-of-service level for subscriptions and publishes.
	QoS byte

	// Filter is the topic filter subscribed on every (re)connect.
	Filter string

	// Topics builds control and namespace topics for this connection.
	Topics Topics

	// ReconnectInitial and ReconnectMax bound the automatic retry
	// backoff. Retries continue indefinitely; only the delay is capped.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// ParseEndpoint normalizes a broker endpoint into a URL paho accepts.
//
// Accepted forms:
//   - "broker.example.com"           -> tcp://broker.example.com:1883
//   - "broker.example.com:1884"      -> tcp://broker.example.com:1884
//   - "mqtt://host[:port]"           -> tcp://host:port
//   - "mqtts://host[:port]"          -> ssl://host:port (default 8883)
//   - "tcp://", "ssl://", "ws://", "wss://" passed through with default ports
//
// Returns ErrInvalidEndpoint for empty input, unknown schemes, or
// unparseable URLs.
func ParseEndpoint(endpoint string) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "tcp://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, endpoint)
	}

	scheme := u.Scheme
	switch scheme {
	case "mqtt":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	case "tcp", "ssl", "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}

	port := u.Port()
	if port == "" {
		switch scheme {
		case "ssl", "wss":
			port = "8883"
		default:
			port = "1883"
		}
	}

	return fmt.Sprintf("%s://%s:%s", scheme, u.Hostname(), port), nil
}

// buildClientOptions creates paho options for a connection.
//
// This configures:
//   - Broker URL from the parsed endpoint
//   - Client ID and optional credentials
//   - Indefinite auto-reconnect with bounded backoff
//   - Per-attempt connection timeout
//   - TLS for ssl/wss endpoints
func buildClientOptions(opts Options, brokerURL string) *pahomqtt.ClientOptions {
	pOpts := pahomqtt.NewClientOptions()
	pOpts.AddBroker(brokerURL)
	pOpts.SetClientID(opts.ClientID)

	if opts.Username != "" {
		pOpts.SetUsername(opts.Username)
		pOpts.SetPassword(opts.Password)
	}

	// Start fresh on connect; subscriptions are restored by the
	// connection itself on every OnConnect callback.
	pOpts.SetCleanSession(true)

	maxDelay := opts.ReconnectMax
	if maxDelay <= 0 {
		maxDelay = defaultReconnectMax
	}

	// Re-established sessions retry indefinitely: the device population
	// is long-lived and intermittent connectivity is expected. Only the
	// delay is bounded. Initial attempts are driven by the connect loop.
	pOpts.SetAutoReconnect(true)
	pOpts.SetMaxReconnectInterval(maxDelay)

	pOpts.SetConnectTimeout(defaultConnectTimeout)
	pOpts.SetKeepAlive(defaultKeepAlive)

	if strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "wss://") {
		pOpts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return pOpts
}
