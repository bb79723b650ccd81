package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, registry.ErrAlreadyRegistered) {
//	    // handle duplicate registration
//	}
var (
	// ErrAlreadyRegistered is returned when registering a name that is
	// already in use, including the reserved primary name.
	ErrAlreadyRegistered = errors.New("registry: already registered")

	// ErrNotFound is returned when unregistering or looking up a name
	// that has no registration.
	ErrNotFound = errors.New("registry: not found")

	// ErrInvalidName is returned when a device name is empty, too long,
	// or contains MQTT topic metacharacters.
	ErrInvalidName = errors.New("registry: invalid device name")

	// ErrPrimary is returned when attempting to unregister the
	// always-on primary connection.
	ErrPrimary = errors.New("registry: primary connection cannot be unregistered")

	// ErrNotStarted is returned when an operation requires Start to
	// have been called first.
	ErrNotStarted = errors.New("registry: not started")

	// ErrClosed is returned when an operation is attempted after Close.
	ErrClosed = errors.New("registry: closed")
)
