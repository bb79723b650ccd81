// Package broker manages MQTT connections for SensorFlow Core.
//
// This package provides:
//   - One Connection per broker endpoint with subscribe/publish
//   - Automatic reconnection with exponential backoff, retried
//     indefinitely (the delay is capped, not the attempt count)
//   - An explicit connection state machine whose every transition is
//     observable by subscribers
//   - Inbound payload decoding via the codec package, with per-message
//     failures isolated from the connection
//
// # Architecture
//
// The always-on primary connection subscribes to the whole base topic
// namespace on the default broker. Dynamically registered devices get
// their own Connection scoped to <base>/<device>/# on their own
// endpoint; the registry package owns their lifecycle.
//
//	devices -> broker(s) -> Connection -> codec -> relay hub
//
// # State Machine
//
//	Connecting -> Connected -> (Error -> Reconnecting <-> Connected) -> Disconnected
//
// Error is reachable from any live state and always feeds back into
// Reconnecting. Disconnected is terminal: after Disconnect() no further
// transitions, readings, or error events are emitted. The transition
// function is pure (state.go) so the lifecycle is testable without a
// live broker.
//
// # Usage
//
//	conn, err := broker.NewConnection(opts, codec, handlers, logger)
//	if err != nil {
//	    return err
//	}
//	conn.Connect(ctx)
//	defer conn.Disconnect()
package broker
