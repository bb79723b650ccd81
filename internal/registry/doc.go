// Package registry manages the set of broker connections known to
// SensorFlow Core.
//
// The registry owns one always-on primary connection plus dynamically
// registered device connections, each subscribed to its own slice of
// the topic namespace. Registrations are persisted through a Repository
// (SQLite in production, memory for tests and database-less runs) and
// restored on startup.
//
// Lifecycle operations are serialised: when two clients race to
// register the same name, exactly one wins and the other receives
// ErrAlreadyRegistered. Unregistering closes the device's connection
// before returning, so no events from that device arrive afterwards.
package registry
