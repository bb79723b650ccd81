package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Codec decrypts and normalizes telemetry payloads.
//
// It is safe for concurrent use: the cipher block is created once and
// every operation derives its own CBC decrypter.
type Codec struct {
	block cipher.Block
	iv    []byte
}

// New creates a Codec from the shared AES-256-CBC key material.
//
// Parameters:
//   - key: Exactly 32 bytes (AES-256)
//   - iv: Exactly 16 bytes (one AES block)
//
// Returns:
//   - *Codec: Ready for Decode/Decrypt/Encrypt
//   - error: ErrInvalidKeySize or ErrInvalidIVSize on bad material
func New(key, iv []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidIVSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: creating cipher: %w", err)
	}

	return &Codec{
		block: block,
		iv:    append([]byte(nil), iv...),
	}, nil
}

// Decode turns a raw inbound payload into a Reading.
//
// It first attempts decryption. If the payload is not valid ciphertext but
// looks like plaintext (legacy publishers send unencrypted JSON or bare
// numbers), it is normalized directly. Garbled input that is neither yields
// the *DecryptionError.
//
// Parameters:
//   - topic: The topic the payload arrived on (for unit inference and errors)
//   - payload: Raw message bytes (base64 ciphertext, raw ciphertext, or plaintext)
//
// Returns:
//   - Reading: The normalized reading on success
//   - error: *DecryptionError or *ValidationError on failure
func (c *Codec) Decode(topic string, payload []byte) (Reading, error) {
	plaintext, err := c.Decrypt(payload)
	if err == nil {
		return Normalize(topic, plaintext)
	}

	if looksLikePlaintext(payload) {
		return Normalize(topic, payload)
	}

	return Reading{}, err
}

// Decrypt decrypts an AES-256-CBC payload and strips PKCS#7 padding.
//
// The payload may be base64-encoded (the usual wire form) or raw
// ciphertext bytes; both are accepted.
//
// Returns:
//   - []byte: The plaintext
//   - error: *DecryptionError on corrupt or undecryptable input
func (c *Codec) Decrypt(payload []byte) ([]byte, error) {
	ciphertext := payload
	if decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(payload))); err == nil {
		ciphertext = decoded
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecryptionError{
			Reason: fmt.Sprintf("ciphertext length %d is not a positive multiple of the AES block size", len(ciphertext)),
		}
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := stripPKCS7(plaintext)
	if err != nil {
		return nil, &DecryptionError{Reason: "invalid padding", Err: err}
	}

	return unpadded, nil
}

// Encrypt is the inverse of Decrypt: it pads, encrypts, and base64-encodes
// a plaintext payload. Used by tests and simulators; the service itself
// only decrypts.
func (c *Codec) Encrypt(plaintext []byte) string {
	padded := padPKCS7(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(ciphertext, padded)
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// padPKCS7 appends PKCS#7 padding up to the AES block size.
func padPKCS7(data []byte) []byte {
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// stripPKCS7 validates and removes PKCS#7 padding.
func stripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, fmt.Errorf("padding length %d out of range", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("inconsistent padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}

// looksLikePlaintext reports whether a payload that failed decryption
// should be treated as an unencrypted reading. Valid JSON and bare
// numeric strings qualify; base64 ciphertext and binary garbage do not.
func looksLikePlaintext(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || !utf8.Valid(trimmed) {
		return false
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(string(trimmed)), 64); err == nil {
		return true
	}
	return json.Valid(trimmed) && (trimmed[0] == '{' || trimmed[0] == '[' || trimmed[0] == '"')
}
