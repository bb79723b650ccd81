// Package codec decrypts and normalizes raw telemetry payloads into readings.
//
// Devices publish AES-256-CBC ciphertext (usually base64-encoded) containing
// either a JSON reading object or a bare numeric string. Legacy publishers
// skip encryption entirely and publish the plaintext forms directly; Decode
// handles both transparently.
//
// The package is pure: it holds only the cipher material and has no network
// or storage state. All failures are typed (*DecryptionError,
// *ValidationError) so callers can surface them as viewer-facing error
// events instead of crashing the ingestion path.
//
// # Usage
//
//	c, err := codec.New([]byte(cfg.Crypto.Key), []byte(cfg.Crypto.IV))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reading, err := c.Decode("sensorflow/demo/rpi1/temperature", payload)
package codec
