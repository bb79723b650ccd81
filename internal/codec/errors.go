package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for cipher construction.
var (
	// ErrInvalidKeySize is returned when the key is not 32 bytes (AES-256).
	ErrInvalidKeySize = errors.New("codec: key must be 32 bytes")

	// ErrInvalidIVSize is returned when the IV is not one AES block.
	ErrInvalidIVSize = errors.New("codec: iv must be 16 bytes")
)

// DecryptionError indicates a payload could not be decrypted.
//
// It is reported to viewers as an error event and the message is dropped;
// it must never abort the owning broker connection.
type DecryptionError struct {
	// Reason is a human-readable description of the failure.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: decryption failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("codec: decryption failed: %s", e.Reason)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// ValidationError indicates a decrypted payload carried no derivable
// numeric value.
//
// Like DecryptionError it is reported, not fatal: the message is dropped
// and an error event is broadcast with the offending raw message.
type ValidationError struct {
	// Topic is the topic the message arrived on.
	Topic string

	// RawMessage is the plaintext that failed validation, truncated for display.
	RawMessage string

	// Reason describes why no reading could be derived.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("codec: invalid reading on %s: %s", e.Topic, e.Reason)
}
