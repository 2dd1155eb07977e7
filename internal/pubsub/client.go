package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/nerrad567/mqttrx/internal/connection"
	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttrx/internal/subscription"
)

// Transport is everything the client needs from the mqtt adapter.
// *mqtt.Client and *mqtttest.Transport satisfy it.
type Transport interface {
	connection.Opener
	subscription.Transport
	Publish(id mqtt.OpID, topic string, payload []byte, qos byte, retained bool) error
	Events() <-chan mqtt.Event
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

// Client is the typed publish/subscribe facade over one broker connection.
//
// It owns a connection.Machine and a subscription.Registry and runs the
// single dispatch goroutine that feeds them from the transport's events.
//
// Thread Safety:
//   - All methods and the package-level generic functions are safe for
//     concurrent use from multiple goroutines.
type Client struct {
	transport  Transport
	logger     Logger
	recorder   Recorder
	defaultQoS atomic.Uint32

	machine   *connection.Machine
	registry  *subscription.Registry
	publishes *mqtt.AckTracker

	loopDone chan struct{}
	ended    atomic.Bool
	endOnce  sync.Once
	endErr   error
}

// New creates a client over transport and starts its dispatch loop.
// Nothing is sent to the broker until Connect.
//
// Parameters:
//   - transport: The mqtt adapter (or a fake in tests)
//   - opts: Optional settings (WithLogger, WithRecorder, WithDefaultQoS)
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    nopLogger{},
		recorder:  nopRecorder{},
		publishes: mqtt.NewAckTracker(),
		loopDone:  make(chan struct{}),
	}
	c.defaultQoS.Store(1)
	for _, opt := range opts {
		opt(c)
	}

	c.machine = connection.NewMachine(transport,
		connection.WithLogger(c.logger),
		connection.WithTransitionHook(c.onTransition),
	)
	c.registry = subscription.NewRegistry(transport,
		subscription.WithLogger(c.logger),
		subscription.WithDeliveryHook(c.recorder.RecordDelivery),
	)

	go c.dispatch()
	return c
}

// dispatch is the only reader of the transport's events. Stale connection
// events stop at the machine; operation results always reach the registry
// and the publish waiters.
func (c *Client) dispatch() {
	defer close(c.loopDone)

	for ev := range c.transport.Events() {
		if !c.machine.HandleEvent(ev) {
			c.logger.Debug("stale event dropped", "kind", ev.Kind.String(), "conn", uint64(ev.Conn))
			continue
		}
		c.registry.HandleEvent(ev)
		if ev.IsResult() {
			c.publishes.Resolve(ev)
		}
	}
}

func (c *Client) onTransition(from, to connection.State) {
	if from.Status() != to.Status() {
		c.recorder.RecordStatus(to.Status())
	}
}

// Connect starts (or replaces) the broker connection. See connection.Machine
// for the behaviour with a connection already in place. The configured QoS
// becomes the default for later calls.
//
// Returns:
//   - error: ErrEnded, connection.ErrInvalidConfig or mqtt.ErrConnectionFailed
func (c *Client) Connect(ctx context.Context, cfg config.MQTTConfig) error {
	if err := c.machine.Connect(ctx, cfg); err != nil {
		return err
	}
	c.defaultQoS.Store(uint32(cfg.QoS))
	c.logger.Info("connecting", "broker", cfg.BrokerURL())
	return nil
}

// Status opens a stream of CONNECTED/DISCONNECTED values, starting with the
// current one. Close it when no longer needed.
func (c *Client) Status() *connection.StatusStream {
	return c.machine.Status()
}

// WaitConnected blocks until the connection is up, the attempt fails or ctx ends.
func (c *Client) WaitConnected(ctx context.Context) error {
	return c.machine.WaitConnected(ctx)
}

// State returns the internal connection state.
func (c *Client) State() connection.State {
	return c.machine.State()
}

// LastError returns the reason of the most recent connection failure.
func (c *Client) LastError() error {
	return c.machine.LastError()
}

// Topics returns the filters with at least one active subscription.
func (c *Client) Topics() []string {
	return c.registry.Topics()
}

// SubscribeTo opens a logical subscription on topic whose payloads are
// decoded from JSON as T.
//
// The stream yields a Grant once the broker has confirmed the subscription
// (immediately when another subscriber already holds it), then messages.
// Subscribing while disconnected is allowed: the SUBSCRIBE goes out on connect.
//
// Returns:
//   - *subscription.Stream[T]: The new stream
//   - error: ErrEnded, mqtt.ErrInvalidTopic, mqtt.ErrInvalidQoS or
//     subscription.ErrSubscribeFailed
func SubscribeTo[T any](c *Client, topic string, opts ...CallOption) (*subscription.Stream[T], error) {
	if c.ended.Load() {
		return nil, ErrEnded
	}

	o := c.callOptions(opts)
	s, err := subscription.Subscribe(c.registry, topic, subscription.JSONDecoder[T](), subscription.WithQoS(o.qos))
	if errors.Is(err, subscription.ErrRegistryClosed) {
		return nil, ErrEnded
	}
	return s, err
}

// PublishTo encodes payload as JSON and publishes it on topic.
//
// It waits for the adapter's acknowledgement (PUBACK/PUBCOMP for QoS 1/2,
// hand-off for QoS 0) or ctx, whichever comes first.
//
// Returns:
//   - error: mqtt.ErrPublishFailed wrapping the cause (encoding, not
//     connected, broker failure, timeout, End), or ctx.Err()
func PublishTo[T any](ctx context.Context, c *Client, topic string, payload T, opts ...CallOption) error {
	o := c.callOptions(opts)

	data, err := json.Marshal(payload)
	if err != nil {
		err = fmt.Errorf("%w: encoding payload for %s: %w", mqtt.ErrPublishFailed, topic, err)
		c.recorder.RecordPublish(topic, 0, err)
		return err
	}

	err = c.publish(ctx, topic, data, o.qos, o.retain)
	c.recorder.RecordPublish(topic, len(data), err)
	return err
}

func (c *Client) publish(ctx context.Context, topic string, data []byte, qos byte, retain bool) error {
	if c.ended.Load() {
		return fmt.Errorf("%w: %w", mqtt.ErrPublishFailed, ErrEnded)
	}

	id := c.transport.NextOpID()
	done := c.publishes.Register(id)

	if err := c.transport.Publish(id, topic, data, qos, retain); err != nil {
		c.publishes.Forget(id)
		return publishError(topic, err)
	}

	select {
	case err := <-done:
		if err != nil {
			return publishError(topic, err)
		}
		c.logger.Debug("published", "topic", topic, "bytes", len(data), "qos", qos)
		return nil
	case <-ctx.Done():
		c.publishes.Forget(id)
		return ctx.Err()
	}
}

func publishError(topic string, err error) error {
	if errors.Is(err, mqtt.ErrPublishFailed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", mqtt.ErrPublishFailed, topic, err)
}

// UnsubscribeFrom releases the oldest subscription on topic. The
// UNSUBSCRIBE is sent, and waited for, only when it was the last one.
//
// Returns:
//   - error: ErrEnded, subscription.ErrNotSubscribed,
//     subscription.ErrUnsubscribeFailed or ctx.Err()
func (c *Client) UnsubscribeFrom(ctx context.Context, topic string) error {
	if c.ended.Load() {
		return ErrEnded
	}
	err := c.registry.Unsubscribe(ctx, topic)
	if errors.Is(err, subscription.ErrRegistryClosed) {
		return ErrEnded
	}
	return err
}

// End completes every subscription stream, disconnects, and stops the
// dispatch loop. Publishes still waiting fail with ErrEnded. A recorder
// that implements io.Closer is closed last.
//
// Status observers see one final DISCONNECTED (when not already
// disconnected) and then complete. Calling End more than once returns the
// first result.
func (c *Client) End() error {
	c.endOnce.Do(func() {
		c.ended.Store(true)

		c.registry.Close()
		err := c.machine.End()

		<-c.loopDone
		c.publishes.FailAll(ErrEnded)

		if closer, ok := c.recorder.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}

		c.endErr = err
		c.logger.Info("client ended")
	})
	return c.endErr
}

func (c *Client) callOptions(opts []CallOption) callOptions {
	o := callOptions{qos: byte(c.defaultQoS.Load())}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
