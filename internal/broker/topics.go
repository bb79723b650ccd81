package broker

import (
	"fmt"
	"strings"
)

// Topic namespace:
//
//	<base>/<device>/<sensor>          primary readings
//	<base>/<device>/<sensor>/energy   energy sub-metrics
//	<base>/<device>/control           control messages to the device
//
// Using these helpers keeps topic construction consistent across the
// ingestion path, the control path, and the history purge on
// unregistration.

// controlSegment is the final topic segment reserved for control messages.
const controlSegment = "control"

// Topics builds topic strings under a configured base.
type Topics struct {
	Base string
}

// AllReadings returns the wildcard filter covering every device under
// the base. Control topics also match; the inbound pipeline skips them.
//
// Pattern: <base>/#
func (t Topics) AllReadings() string {
	return t.Base + "/#"
}

// DeviceReadings returns the wildcard filter for one device's namespace.
//
// Pattern: <base>/<device>/#
func (t Topics) DeviceReadings(device string) string {
	return fmt.Sprintf("%s/%s/#", t.Base, device)
}

// DeviceNamespace returns the prefix owning all of a device's topics,
// used to purge history on unregistration.
func (t Topics) DeviceNamespace(device string) string {
	return fmt.Sprintf("%s/%s", t.Base, device)
}

// Control returns the control topic for a device.
//
// Example: sensorflow/demo/rpi1/control
func (t Topics) Control(device string) string {
	return fmt.Sprintf("%s/%s/%s", t.Base, device, controlSegment)
}

// Sensor returns the reading topic for one sensor on one device.
//
// Example: sensorflow/demo/rpi1/temperature
func (t Topics) Sensor(device, sensor string) string {
	return fmt.Sprintf("%s/%s/%s", t.Base, device, sensor)
}

// Energy returns the energy sub-metric topic for one sensor.
//
// Example: sensorflow/demo/rpi1/temperature/energy
func (t Topics) Energy(device, sensor string) string {
	return fmt.Sprintf("%s/%s/%s/energy", t.Base, device, sensor)
}

// Device extracts the device segment from a topic under the base.
// Returns an empty string when the topic is outside the namespace or
// has no device segment.
func (t Topics) Device(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.Base+"/")
	if !ok {
		return ""
	}
	device, _, _ := strings.Cut(rest, "/")
	return device
}

// IsControl reports whether a topic is a control topic. Control echoes
// arrive on the reading wildcard subscription and must not be fed
// through the codec.
func IsControl(topic string) bool {
	return topic == controlSegment || strings.HasSuffix(topic, "/"+controlSegment)
}
