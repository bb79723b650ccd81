package codec

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNormalize_JSONObject(t *testing.T) {
	reading, err := Normalize("sensorflow/demo/rpi1/temperature",
		[]byte(`{"value":25.5,"unit":"°C","timestamp":"2024-02-20T10:00:00Z","device":"rpi1"}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if reading.Value != 25.5 {
		t.Errorf("Value = %v, want 25.5", reading.Value)
	}
	if reading.Unit != "°C" {
		t.Errorf("Unit = %q, want °C", reading.Unit)
	}
	if reading.Timestamp != "2024-02-20T10:00:00Z" {
		t.Errorf("Timestamp = %q", reading.Timestamp)
	}
	if reading.Device != "rpi1" {
		t.Errorf("Device = %q, want rpi1", reading.Device)
	}
}

func TestNormalize_BareNumber(t *testing.T) {
	reading, err := Normalize("sensorflow/demo/rpi1/pressure", []byte("  1013.25 "))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if reading.Value != 1013.25 {
		t.Errorf("Value = %v, want 1013.25", reading.Value)
	}
	if reading.Unit != "hPa" {
		t.Errorf("Unit = %q, want inferred hPa", reading.Unit)
	}
	if reading.Timestamp == "" {
		t.Error("Timestamp should be filled with current time")
	}
	if _, err := time.Parse(time.RFC3339, reading.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", reading.Timestamp, err)
	}
}

func TestNormalize_QuotedNumericValue(t *testing.T) {
	reading, err := Normalize("sensorflow/demo/rpi2/co2", []byte(`{"value":"412.5"}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if reading.Value != 412.5 {
		t.Errorf("Value = %v, want 412.5", reading.Value)
	}
}

func TestNormalize_DefaultsFilled(t *testing.T) {
	reading, err := Normalize("sensorflow/demo/rpi1/humidity", []byte(`{"value":55}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if reading.Unit != "%" {
		t.Errorf("Unit = %q, want inferred %%", reading.Unit)
	}
	if reading.Timestamp == "" {
		t.Error("Timestamp should default to current time")
	}
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantReason string
	}{
		{name: "empty", payload: "", wantReason: "empty payload"},
		{name: "whitespace only", payload: "   ", wantReason: "empty payload"},
		{name: "non-json text", payload: "hello world", wantReason: "neither a number nor a JSON object"},
		{name: "json without value", payload: `{"unit":"°C"}`, wantReason: "no numeric value"},
		{name: "non-numeric value", payload: `{"value":"warm"}`, wantReason: "no numeric value"},
		{name: "null value", payload: `{"value":null}`, wantReason: "no numeric value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize("sensorflow/demo/rpi1/temperature", []byte(tt.payload))
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("Normalize() error type = %T, want *ValidationError", err)
			}
			if !strings.Contains(valErr.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want containing %q", valErr.Reason, tt.wantReason)
			}
			if valErr.Topic != "sensorflow/demo/rpi1/temperature" {
				t.Errorf("Topic = %q", valErr.Topic)
			}
		})
	}
}

func TestNormalize_RawMessageTruncated(t *testing.T) {
	long := strings.Repeat("x", maxRawMessageLength*2)

	_, err := Normalize("sensorflow/demo/rpi1/temperature", []byte(long))
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("Normalize() error type = %T, want *ValidationError", err)
	}
	if len(valErr.RawMessage) > maxRawMessageLength+3 {
		t.Errorf("RawMessage length = %d, want truncated", len(valErr.RawMessage))
	}
}

func TestInferUnit(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{topic: "sensorflow/demo/rpi1/temperature", want: "°C"},
		{topic: "sensorflow/demo/rpi2/temperature2", want: "°C"},
		{topic: "sensorflow/demo/rpi1/humidity", want: "%"},
		{topic: "sensorflow/demo/rpi1/pressure", want: "hPa"},
		{topic: "sensorflow/demo/rpi2/light", want: "N/A"},
		{topic: "sensorflow/demo/rpi2/co2", want: "N/A"},
		{topic: "sensorflow/demo/RPI1/Temperature", want: "°C"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := InferUnit(tt.topic); got != tt.want {
				t.Errorf("InferUnit(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestNormalize_NullValueIsInvalid(t *testing.T) {
	// json.RawMessage "null" unmarshals into float64 with an error, so it
	// must be rejected rather than defaulting to zero.
	if _, ok := parseWireValue([]byte("null")); ok {
		t.Error("parseWireValue(null) = ok, want rejection")
	}
}
