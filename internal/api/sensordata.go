package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sensorflow/sensorflow-core/internal/codec"
)

// sensorDataRequest is the body for POST /sensor-data, the HTTP
// ingestion path. Plain requests carry the reading fields directly;
// encrypted requests carry the base64 AES ciphertext in payload.
type sensorDataRequest struct {
	Device      string             `json:"device"`
	Sensor      string             `json:"sensor"`
	Value       *float64           `json:"value,omitempty"`
	Unit        string             `json:"unit,omitempty"`
	Timestamp   string             `json:"timestamp,omitempty"`
	Coordinates *codec.Coordinates `json:"coordinates,omitempty"`
	Threshold   *float64           `json:"threshold,omitempty"`
	Encrypted   bool               `json:"encrypted,omitempty"`
	Payload     string             `json:"payload,omitempty"`
}

// handleSensorData ingests one reading over HTTP. The reading flows
// through the same codec and hub path as an MQTT message, so history,
// fan-out, and export behave identically.
//
// Responses: 202 on acceptance, 400 for malformed or undecodable
// input.
func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	var req sensorDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Device == "" || req.Sensor == "" {
		writeBadRequest(w, "device and sensor are required")
		return
	}
	if strings.ContainsAny(req.Device+req.Sensor, "/+#") {
		writeBadRequest(w, "device and sensor must not contain topic metacharacters")
		return
	}

	topic := s.topics.Sensor(req.Device, req.Sensor)

	reading, err := s.decodeSensorData(topic, req)
	if err != nil {
		var decErr *codec.DecryptionError
		var valErr *codec.ValidationError
		switch {
		case errors.As(err, &decErr):
			writeBadRequest(w, "payload decryption failed: "+decErr.Reason)
		case errors.As(err, &valErr):
			writeBadRequest(w, "invalid reading: "+valErr.Reason)
		default:
			writeBadRequest(w, err.Error())
		}
		return
	}
	if reading.Device == "" {
		reading.Device = req.Device
	}

	s.hub.OnReading(topic, reading)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"topic":    topic,
	})
}

// decodeSensorData funnels both request forms through the codec.
func (s *Server) decodeSensorData(topic string, req sensorDataRequest) (codec.Reading, error) {
	if req.Encrypted {
		if req.Payload == "" {
			return codec.Reading{}, errors.New("payload is required when encrypted is true")
		}
		return s.codec.Decode(topic, []byte(req.Payload))
	}

	if req.Value == nil {
		return codec.Reading{}, errors.New("value is required")
	}

	// Re-marshal the reading fields so Normalize applies the same
	// defaulting (unit inference, timestamp) as the MQTT path.
	plaintext, err := json.Marshal(codec.Reading{
		Value:       *req.Value,
		Unit:        req.Unit,
		Timestamp:   req.Timestamp,
		Coordinates: req.Coordinates,
		Threshold:   req.Threshold,
	})
	if err != nil {
		return codec.Reading{}, err
	}
	return codec.Normalize(topic, plaintext)
}
