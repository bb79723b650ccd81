// Package relay fans decoded telemetry out to live subscriber sessions.
//
// The hub is the single serialisation point of the data plane: broker
// connections deliver readings, decode errors, and state changes into
// it, and it appends to the history store and broadcasts to every
// attached session. A session attached mid-stream first receives a
// status snapshot and a per-topic history replay, then live events;
// per topic, replay always precedes live.
//
// Broadcast is best-effort: each session has a bounded buffer and a
// slow consumer drops events rather than stalling the hub or other
// sessions.
package relay
