package connection

// State is the internal lifecycle state of the machine.
type State int

// Lifecycle states.
const (
	// StateDisconnected is the initial and terminal state.
	StateDisconnected State = iota

	// StateConnecting means a connection attempt is in progress.
	StateConnecting

	// StateConnected means the broker accepted the connection.
	StateConnected

	// StateReconnecting means an established connection dropped and the
	// transport is retrying on its own.
	StateReconnecting
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Status maps the state onto the public two-value status.
func (s State) Status() Status {
	if s == StateConnected {
		return StatusConnected
	}
	return StatusDisconnected
}

// Status is the connection health observed by consumers.
type Status int

// Public statuses.
const (
	StatusDisconnected Status = iota
	StatusConnected
)

// String returns "CONNECTED" or "DISCONNECTED".
func (s Status) String() string {
	if s == StatusConnected {
		return "CONNECTED"
	}
	return "DISCONNECTED"
}
