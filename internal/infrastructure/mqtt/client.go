package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
	"github.com/nerrad567/mqttrx/internal/queue"
)

// Client adapts paho.mqtt.golang to the event-driven model used by mqttrx.
//
// It owns at most one paho connection at a time. Every outcome is reported
// on a single ordered stream returned by Events:
//   - connection changes (connected, lost, connect failed)
//   - inbound messages
//   - the result of every subscribe, unsubscribe and publish, keyed by OpID
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - paho callbacks never block: events are buffered in an unbounded queue.
type Client struct {
	mu     sync.Mutex
	client pahomqtt.Client
	conn   ConnID
	closed bool

	events *queue.Queue[Event]
	done   chan struct{}
	nextOp atomic.Uint64

	opTimeout time.Duration
	logger    Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// New creates an adapter with no open connection.
//
// Parameters:
//   - opts: Optional settings (WithLogger, WithOpTimeout)
//
// Returns:
//   - *Client: Adapter ready for Open
func New(opts ...Option) *Client {
	c := &Client{
		events:    queue.New[Event](),
		done:      make(chan struct{}),
		opTimeout: defaultOpTimeout,
		logger:    nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the ordered event stream. It is closed by Close once all
// queued events have been consumed.
func (c *Client) Events() <-chan Event {
	return c.events.Out()
}

// NextOpID allocates a unique operation id.
func (c *Client) NextOpID() OpID {
	return OpID(c.nextOp.Add(1))
}

// Open starts a connection attempt to the configured broker.
//
// It performs the following setup:
//  1. Disconnects the current paho client, if any (no two live connections)
//  2. Builds connection options from config (broker URL, auth, TLS, keepalive)
//  3. Wires paho callbacks to the event stream, tagged with conn
//  4. Starts the connect attempt without waiting for it
//
// The outcome arrives later as EventConnected or EventConnectFailed.
//
// Parameters:
//   - conn: Caller-chosen id carried by every connection and message event
//   - cfg: MQTT configuration
//
// Returns:
//   - error: ErrConnectionFailed for an invalid config, ErrClosed after Close
func (c *Client) Open(conn ConnID, cfg config.MQTTConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.client
	c.client = nil
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		old.Disconnect(defaultDisconnectQuiesce)
		c.logger.Debug("previous MQTT connection closed", "conn", conn)
	}

	clientID := resolveClientID(cfg)
	opts := buildClientOptions(cfg, clientID)

	opts.SetDefaultPublishHandler(c.wrapHandler(conn))

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.logger.Info("MQTT connected", "broker", cfg.BrokerURL(), "client_id", clientID)
		c.emitConn(conn, Event{Kind: EventConnected})
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("MQTT connection lost", "broker", cfg.BrokerURL(), "error", err)
		c.emitConn(conn, Event{Kind: EventConnectionLost, Err: err})
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.logger.Debug("MQTT reconnecting", "broker", cfg.BrokerURL())
	})

	client := pahomqtt.NewClient(opts)

	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return ErrClosed
	}
	c.client = client
	c.mu.Unlock()

	token := client.Connect()
	go c.watchConnect(conn, cfg.BrokerURL(), token)

	return nil
}

// watchConnect reports a failed connect attempt.
// Success is reported by the OnConnect handler.
func (c *Client) watchConnect(conn ConnID, broker string, token pahomqtt.Token) {
	select {
	case <-token.Done():
	case <-c.done:
		return
	}

	if err := token.Error(); err != nil {
		c.logger.Warn("MQTT connect failed", "broker", broker, "error", err)
		c.emitConn(conn, Event{
			Kind: EventConnectFailed,
			Err:  fmt.Errorf("%w: %w", ErrConnectionFailed, err),
		})
	}
}

// Close disconnects from the broker and releases the adapter.
//
// After Close the event stream drains and closes, and Open returns ErrClosed.
// Calling Close more than once is a no-op.
//
// Returns:
//   - error: nil (a connection that is already down is not an error)
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	client := c.client
	c.client = nil
	close(c.done)
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}
	c.events.Close()

	return nil
}

// IsConnected reports whether the current connection is open.
// It returns false while paho is between reconnect attempts.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// current returns the open paho client or ErrNotConnected.
func (c *Client) current() (pahomqtt.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil || !c.client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// emitConn publishes a connection-scoped event if conn is still current.
func (c *Client) emitConn(conn ConnID, ev Event) {
	c.mu.Lock()
	current := !c.closed && c.conn == conn
	c.mu.Unlock()

	if !current {
		return
	}
	ev.Conn = conn
	c.events.Push(ev)
}

// emit publishes an operation result. Results are never discarded as stale.
func (c *Client) emit(ev Event) {
	c.events.Push(ev)
}

// watch waits for an operation token and reports its result.
func (c *Client) watch(id OpID, topic string, token pahomqtt.Token, failure error, check func() error) {
	timer := time.NewTimer(c.opTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-token.Done():
		err = token.Error()
		if err == nil && check != nil {
			err = check()
		}
	case <-timer.C:
		err = fmt.Errorf("%w after %v", ErrTimeout, c.opTimeout)
	case <-c.done:
		err = ErrClosed
	}

	if err != nil {
		c.emit(Event{Kind: EventFailed, Op: id, Topic: topic, Err: fmt.Errorf("%w: %w", failure, err)})
		return
	}
	c.emit(Event{Kind: EventAck, Op: id, Topic: topic})
}

// wrapHandler turns inbound paho messages into EventMessage, with panic recovery.
func (c *Client) wrapHandler(conn ConnID) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		c.emitConn(conn, Event{
			Kind:     EventMessage,
			Topic:    msg.Topic(),
			Payload:  msg.Payload(),
			QoS:      msg.Qos(),
			Retained: msg.Retained(),
		})
	}
}
