// Package mqtttest provides an in-memory stand-in for the mqtt adapter.
//
// Transport satisfies the transport interfaces of the connection,
// subscription and pubsub packages. Tests drive it explicitly: connection
// events, broker acknowledgements and inbound messages happen only when the
// test asks for them (or automatically, when AutoAck/AutoConnect are on).
package mqtttest

import (
	"sync"

	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttrx/internal/queue"
)

// OpKind names an operation recorded by the fake.
type OpKind string

// Recorded operation kinds.
const (
	OpSubscribe   OpKind = "subscribe"
	OpUnsubscribe OpKind = "unsubscribe"
	OpPublish     OpKind = "publish"
)

// Op is one operation issued through the fake.
type Op struct {
	Kind     OpKind
	ID       mqtt.OpID
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Transport is a scriptable fake of mqtt.Client.
//
// Defaults: AutoConnect and AutoAck are true, so Open is followed by
// EventConnected and every operation by EventAck.
type Transport struct {
	mu sync.Mutex

	// AutoConnect emits EventConnected right after a successful Open.
	AutoConnect bool

	// AutoAck acknowledges every operation as soon as it is issued.
	AutoAck bool

	// OpenErr, when set, is returned by the next Open calls.
	OpenErr error

	events    *queue.Queue[mqtt.Event]
	nextOp    mqtt.OpID
	conn      mqtt.ConnID
	connected bool
	closed    bool

	configs []config.MQTTConfig
	closes  int
	ops     []Op
	pending map[mqtt.OpID]Op
}

// New returns a fake transport with AutoConnect and AutoAck enabled.
func New() *Transport {
	return &Transport{
		AutoConnect: true,
		AutoAck:     true,
		events:      queue.New[mqtt.Event](),
		pending:     make(map[mqtt.OpID]Op),
	}
}

// Events returns the ordered event stream.
func (t *Transport) Events() <-chan mqtt.Event {
	return t.events.Out()
}

// NextOpID allocates a unique operation id.
func (t *Transport) NextOpID() mqtt.OpID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextOp++
	return t.nextOp
}

// Open records cfg and starts a fake connection tagged with conn.
func (t *Transport) Open(conn mqtt.ConnID, cfg config.MQTTConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return mqtt.ErrClosed
	}
	if t.OpenErr != nil {
		return t.OpenErr
	}

	t.configs = append(t.configs, cfg)
	t.conn = conn
	t.connected = false
	if t.AutoConnect {
		t.connectLocked()
	}
	return nil
}

// Close ends the fake connection and closes the event stream after it drains.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closes++
	if t.closed {
		return nil
	}
	t.closed = true
	t.connected = false
	t.events.Close()
	return nil
}

// IsConnected reports the fake connection state.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Subscribe records a SUBSCRIBE.
func (t *Transport) Subscribe(id mqtt.OpID, filter string, qos byte) error {
	if err := mqtt.ValidateFilter(filter); err != nil {
		return err
	}
	return t.issue(Op{Kind: OpSubscribe, ID: id, Topic: filter, QoS: qos})
}

// Unsubscribe records an UNSUBSCRIBE.
func (t *Transport) Unsubscribe(id mqtt.OpID, filter string) error {
	if err := mqtt.ValidateFilter(filter); err != nil {
		return err
	}
	return t.issue(Op{Kind: OpUnsubscribe, ID: id, Topic: filter})
}

// Publish records a PUBLISH.
func (t *Transport) Publish(id mqtt.OpID, topic string, payload []byte, qos byte, retained bool) error {
	if err := mqtt.ValidateTopic(topic); err != nil {
		return err
	}
	return t.issue(Op{Kind: OpPublish, ID: id, Topic: topic, Payload: payload, QoS: qos, Retained: retained})
}

func (t *Transport) issue(op Op) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return mqtt.ErrNotConnected
	}

	t.ops = append(t.ops, op)
	if t.AutoAck {
		t.events.Push(mqtt.Event{Kind: mqtt.EventAck, Op: op.ID, Topic: op.Topic})
		return nil
	}
	t.pending[op.ID] = op
	return nil
}

// =============================================================================
// Test Controls
// =============================================================================

// SetAutoAck switches automatic acknowledgement on or off.
func (t *Transport) SetAutoAck(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AutoAck = on
}

// Connect emits EventConnected for the current connection.
func (t *Transport) Connect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectLocked()
}

func (t *Transport) connectLocked() {
	t.connected = true
	t.events.Push(mqtt.Event{Kind: mqtt.EventConnected, Conn: t.conn})
}

// Drop emits EventConnectionLost for the current connection.
func (t *Transport) Drop(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = false
	t.events.Push(mqtt.Event{Kind: mqtt.EventConnectionLost, Conn: t.conn, Err: err})
}

// FailConnect emits EventConnectFailed for the current connection.
func (t *Transport) FailConnect(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = false
	t.events.Push(mqtt.Event{Kind: mqtt.EventConnectFailed, Conn: t.conn, Err: err})
}

// Deliver emits an inbound message on the current connection.
func (t *Transport) Deliver(topic string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events.Push(mqtt.Event{Kind: mqtt.EventMessage, Conn: t.conn, Topic: topic, Payload: payload})
}

// Emit pushes an arbitrary event, e.g. one tagged with a stale ConnID.
func (t *Transport) Emit(ev mqtt.Event) {
	t.events.Push(ev)
}

// Pending returns the oldest unacknowledged operation of kind on topic.
func (t *Transport) Pending(kind OpKind, topic string) (Op, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var found Op
	ok := false
	for _, op := range t.pending {
		if op.Kind == kind && op.Topic == topic && (!ok || op.ID < found.ID) {
			found, ok = op, true
		}
	}
	return found, ok
}

// Ack acknowledges a pending operation.
func (t *Transport) Ack(id mqtt.OpID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op := t.pending[id]
	delete(t.pending, id)
	t.events.Push(mqtt.Event{Kind: mqtt.EventAck, Op: id, Topic: op.Topic})
}

// Fail fails a pending operation with err.
func (t *Transport) Fail(id mqtt.OpID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op := t.pending[id]
	delete(t.pending, id)
	t.events.Push(mqtt.Event{Kind: mqtt.EventFailed, Op: id, Topic: op.Topic, Err: err})
}

// =============================================================================
// Inspection
// =============================================================================

// Ops returns every operation issued while connected, in order.
func (t *Transport) Ops() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Op(nil), t.ops...)
}

// Count returns how many operations of kind were issued on topic.
func (t *Transport) Count(kind OpKind, topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, op := range t.ops {
		if op.Kind == kind && op.Topic == topic {
			n++
		}
	}
	return n
}

// Opens returns the configs passed to successful Open calls.
func (t *Transport) Opens() []config.MQTTConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]config.MQTTConfig(nil), t.configs...)
}

// Closes returns how many times Close was called.
func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}
