package mqtt

import "fmt"

// OpID correlates an asynchronous operation (subscribe, unsubscribe,
// publish) with its EventAck or EventFailed result.
//
// Callers allocate the id with NextOpID and register their waiter before
// issuing the operation, so the result can never arrive first.
type OpID uint64

// ConnID identifies one connection opened with Open.
// Connection and message events carry the ConnID they belong to, which lets
// consumers discard events from a connection that has since been replaced.
type ConnID uint64

// EventKind discriminates the variants of Event.
type EventKind int

// Event kinds emitted by the adapter.
const (
	// EventConnected is emitted on the initial connect and on every automatic reconnect.
	EventConnected EventKind = iota + 1

	// EventConnectionLost is emitted when an established connection drops.
	EventConnectionLost

	// EventConnectFailed is emitted when a connection attempt started by Open fails.
	EventConnectFailed

	// EventMessage carries one inbound PUBLISH.
	EventMessage

	// EventAck reports that the operation identified by Op completed.
	EventAck

	// EventFailed reports that the operation identified by Op failed. Err holds the reason.
	EventFailed
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectionLost:
		return "connection_lost"
	case EventConnectFailed:
		return "connect_failed"
	case EventMessage:
		return "message"
	case EventAck:
		return "ack"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single notification on the adapter's ordered event stream.
//
// Only the fields relevant to Kind are set:
//   - EventConnected, EventConnectionLost, EventConnectFailed: Conn, Err (lost/failed)
//   - EventMessage: Conn, Topic, Payload, QoS, Retained
//   - EventAck, EventFailed: Op, Topic, Err (failed)
type Event struct {
	Kind     EventKind
	Conn     ConnID
	Op       OpID
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
	Err      error
}

// IsResult reports whether the event resolves an operation.
func (e Event) IsResult() bool {
	return e.Kind == EventAck || e.Kind == EventFailed
}
