package codec

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// maxRawMessageLength bounds the plaintext echoed back in validation
// errors so a large payload cannot bloat error events.
const maxRawMessageLength = 256

// wireReading is the permissive JSON shape accepted from publishers.
// Value may be a JSON number or a quoted numeric string.
type wireReading struct {
	Value       json.RawMessage `json:"value"`
	Unit        string          `json:"unit"`
	Timestamp   string          `json:"timestamp"`
	Device      string          `json:"device"`
	Coordinates *Coordinates    `json:"coordinates"`
	Threshold   *float64        `json:"threshold"`
}

// Normalize parses a plaintext payload into a Reading, filling defaults.
//
// Accepted forms:
//   - JSON object: {value, timestamp?, unit?, device?, coordinates?, threshold?}
//   - Bare numeric string: "25.5"
//
// Missing units are inferred from the topic name; missing timestamps are
// filled with the current UTC time in RFC3339.
//
// Parameters:
//   - topic: The topic the payload arrived on
//   - plaintext: Decrypted (or legacy unencrypted) payload bytes
//
// Returns:
//   - Reading: The normalized reading
//   - error: *ValidationError when no numeric value is derivable
func Normalize(topic string, plaintext []byte) (Reading, error) {
	text := strings.TrimSpace(string(plaintext))
	if text == "" {
		return Reading{}, &ValidationError{
			Topic:      topic,
			RawMessage: truncate(text),
			Reason:     "empty payload",
		}
	}

	// Bare numeric string form.
	if value, err := strconv.ParseFloat(text, 64); err == nil {
		return Reading{
			Value:     value,
			Unit:      InferUnit(topic),
			Timestamp: nowRFC3339(),
		}, nil
	}

	var wire wireReading
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return Reading{}, &ValidationError{
			Topic:      topic,
			RawMessage: truncate(text),
			Reason:     "payload is neither a number nor a JSON object",
		}
	}

	value, ok := parseWireValue(wire.Value)
	if !ok {
		return Reading{}, &ValidationError{
			Topic:      topic,
			RawMessage: truncate(text),
			Reason:     "no numeric value in payload",
		}
	}

	reading := Reading{
		Value:       value,
		Unit:        wire.Unit,
		Timestamp:   wire.Timestamp,
		Device:      wire.Device,
		Coordinates: wire.Coordinates,
		Threshold:   wire.Threshold,
	}
	if reading.Unit == "" {
		reading.Unit = InferUnit(topic)
	}
	if reading.Timestamp == "" {
		reading.Timestamp = nowRFC3339()
	}

	return reading, nil
}

// parseWireValue coerces the wire value field to a float64.
// Accepts JSON numbers and quoted numeric strings. JSON null is rejected
// explicitly: unmarshaling null into a float64 is a silent no-op.
func parseWireValue(raw json.RawMessage) (float64, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, false
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, true
	}

	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		if number, err := strconv.ParseFloat(strings.TrimSpace(quoted), 64); err == nil {
			return number, true
		}
	}

	return 0, false
}

// InferUnit guesses a unit from the topic name when the publisher omits one.
//
// This is a best-effort default, not a guaranteed classification: custom
// sensor names containing these substrings will match too.
func InferUnit(topic string) string {
	lower := strings.ToLower(topic)
	switch {
	case strings.Contains(lower, "temperature"):
		return "°C"
	case strings.Contains(lower, "humidity"):
		return "%"
	case strings.Contains(lower, "pressure"):
		return "hPa"
	default:
		return "N/A"
	}
}

// nowRFC3339 returns the current UTC time in RFC3339 format.
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// truncate bounds a raw message for inclusion in error events.
func truncate(text string) string {
	if len(text) <= maxRawMessageLength {
		return text
	}
	return text[:maxRawMessageLength] + "..."
}
