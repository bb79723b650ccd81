package codec

// Coordinates is an optional geographic position attached to a reading.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Reading is one decoded, normalized telemetry data point.
//
// Readings are immutable once constructed: they are produced by this
// package and consumed by the history store and the relay hub, which
// never modify them.
type Reading struct {
	// Value is the numeric measurement. Always present.
	Value float64 `json:"value"`

	// Unit is the measurement unit. Inferred from the topic name when
	// the publisher omits it; "N/A" when no inference applies.
	Unit string `json:"unit"`

	// Timestamp is the ISO-8601 time of the measurement. Filled with
	// the current UTC time when the publisher omits it.
	Timestamp string `json:"timestamp"`

	// Device is the publishing device's name, if reported.
	Device string `json:"device,omitempty"`

	// Coordinates is the device position, if reported.
	Coordinates *Coordinates `json:"coordinates,omitempty"`

	// Threshold is an alerting threshold for the value, if reported.
	Threshold *float64 `json:"threshold,omitempty"`
}
