package broker

// Status enumerates the connection lifecycle states.
type Status int

const (
	// StatusConnecting is the initial state while the first connection
	// attempt is in flight.
	StatusConnecting Status = iota

	// StatusConnected means the connection is established and subscribed.
	StatusConnected

	// StatusReconnecting means the connection was lost and automatic
	// retry is in progress.
	StatusReconnecting

	// StatusDisconnected is the terminal state after an explicit
	// Disconnect. No further transitions or events occur.
	StatusDisconnected

	// StatusError means a connection-level failure was observed. It is
	// always followed by StatusReconnecting unless the connection has
	// been explicitly torn down.
	StatusError
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is one observable point in a connection's lifecycle.
// Reason is populated for StatusError transitions.
type State struct {
	Status Status
	Reason string
}

// Live reports whether the connection is usable for publishing.
func (s State) Live() bool {
	return s.Status == StatusConnected
}

// event drives the connection state machine.
type event int

const (
	// eventConnect is raised when a connection attempt starts.
	eventConnect event = iota

	// eventConnected is raised when the transport reports an
	// established session (initial connect or after a retry).
	eventConnected

	// eventLost is raised when an established or pending session fails:
	// network error, broker unreachable, or auth failure.
	eventLost

	// eventRetry is raised when the automatic reconnect loop schedules
	// another attempt.
	eventRetry

	// eventDisconnect is raised by an explicit Disconnect call.
	eventDisconnect
)

// transition is the single state-transition function for the connection
// lifecycle. It is pure so reconnect behavior can be tested without a
// live broker.
//
// Returns the next state and whether the transition is observable. A
// false second return means the event is absorbed: either the connection
// is already torn down, or the event would not change the state.
//
// Rules:
//   - StatusDisconnected is terminal: every event is absorbed.
//   - eventLost maps all failure classes to StatusError with the reason;
//     the caller follows up with eventRetry, so Error always feeds back
//     into Reconnecting while the connection is alive.
//   - eventDisconnect is accepted from every live state.
func transition(current State, ev event, reason string) (State, bool) {
	if current.Status == StatusDisconnected {
		return current, false
	}

	var next State
	switch ev {
	case eventConnect:
		next = State{Status: StatusConnecting}
	case eventConnected:
		next = State{Status: StatusConnected}
	case eventLost:
		next = State{Status: StatusError, Reason: reason}
	case eventRetry:
		next = State{Status: StatusReconnecting}
	case eventDisconnect:
		next = State{Status: StatusDisconnected}
	default:
		return current, false
	}

	if next == current {
		return current, false
	}
	return next, true
}
