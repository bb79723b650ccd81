package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sensorflow/sensorflow-core/internal/codec"
)

// WriteReading exports one accepted reading. Implements the relay
// hub's Sink interface.
//
// The write is non-blocking; points are batched and sent
// asynchronously. A reading with a parseable timestamp keeps it,
// otherwise the point is stamped with the current time.
func (c *Client) WriteReading(topic string, reading codec.Reading) {
	if !c.IsConnected() {
		return
	}

	ts := time.Now()
	if parsed, err := time.Parse(time.RFC3339, reading.Timestamp); err == nil {
		ts = parsed
	}

	tags := map[string]string{
		"topic": topic,
		"unit":  reading.Unit,
	}
	if reading.Device != "" {
		tags["device"] = reading.Device
	}

	fields := map[string]interface{}{
		"value": reading.Value,
	}
	if reading.Threshold != nil {
		fields["threshold"] = *reading.Threshold
	}
	if reading.Coordinates != nil {
		fields["lat"] = reading.Coordinates.Lat
		fields["lon"] = reading.Coordinates.Lon
	}

	c.writeAPI.WritePoint(write.NewPoint("sensor_readings", tags, fields, ts))
}
