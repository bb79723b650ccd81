// Package influxdb exports accepted readings to an InfluxDB v2 bucket.
//
// The export is an optional, fire-and-forget sink: writes are batched
// and flushed asynchronously by the client library, and failures are
// reported through an error callback rather than to the data path.
// Replay and history never consult InfluxDB; the bounded in-memory
// history store remains the only source for subscribers.
package influxdb
