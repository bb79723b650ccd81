package broker

import "errors"

// Domain-specific errors for broker operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a
	// connection that is not currently established.
	ErrNotConnected = errors.New("broker: not connected")

	// ErrClosed is returned when operating on an explicitly
	// disconnected connection.
	ErrClosed = errors.New("broker: connection closed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("broker: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("broker: subscribe failed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("broker: topic cannot be empty")

	// ErrInvalidEndpoint is returned when a broker endpoint cannot be parsed.
	ErrInvalidEndpoint = errors.New("broker: invalid endpoint")
)
