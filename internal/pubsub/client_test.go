package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nerrad567/mqttrx/internal/connection"
	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt/mqtttest"
	"github.com/nerrad567/mqttrx/internal/subscription"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type payload struct {
	Bar string `json:"bar"`
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *mqtttest.Transport) {
	t.Helper()

	tr := mqtttest.New()
	c := New(tr, opts...)
	t.Cleanup(func() { c.End() })
	return c, tr
}

func testConfig() config.MQTTConfig {
	return config.Default().MQTT
}

func connect(t *testing.T, c *Client, cfg config.MQTTConfig) {
	t.Helper()
	if err := c.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected() error = %v", err)
	}
}

func subscribe[T any](t *testing.T, c *Client, topic string, opts ...CallOption) *subscription.Stream[T] {
	t.Helper()
	s, err := SubscribeTo[T](c, topic, opts...)
	if err != nil {
		t.Fatalf("SubscribeTo(%q) error = %v", topic, err)
	}
	t.Cleanup(s.Cancel)
	return s
}

func status(t *testing.T, c *Client) *connection.StatusStream {
	t.Helper()
	s := c.Status()
	t.Cleanup(s.Close)
	return s
}

func next[T any](t *testing.T, s *subscription.Stream[T]) subscription.Item[T] {
	t.Helper()
	select {
	case item, ok := <-s.Items():
		if !ok {
			t.Fatalf("stream %q closed, want an item", s.Topic())
		}
		return item
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for an item on %q", s.Topic())
	}
	return subscription.Item[T]{}
}

func expectNoItem[T any](t *testing.T, s *subscription.Stream[T]) {
	t.Helper()
	select {
	case item, ok := <-s.Items():
		if ok {
			t.Fatalf("unexpected %v item on %q", item.Kind, s.Topic())
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func expectStatus(t *testing.T, s *connection.StatusStream, want connection.Status) {
	t.Helper()
	select {
	case got, ok := <-s.C():
		if !ok {
			t.Fatalf("status stream closed, want %v", want)
		}
		if got != want {
			t.Fatalf("status = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for status %v", want)
	}
}

func expectNoStatus(t *testing.T, s *connection.StatusStream) {
	t.Helper()
	select {
	case got, ok := <-s.C():
		if ok {
			t.Fatalf("unexpected status %v", got)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// =============================================================================
// Scenario Tests
// =============================================================================

func TestClient_MophScenario(t *testing.T) {
	c, tr := newTestClient(t)

	st := status(t, c)
	expectStatus(t, st, connection.StatusDisconnected)

	connect(t, c, testConfig())
	expectStatus(t, st, connection.StatusConnected)

	s := subscribe[payload](t, c, "moph")
	if item := next(t, s); item.Kind != subscription.ItemGrant {
		t.Fatalf("first item = %v, want grant", item.Kind)
	}

	if err := PublishTo(context.Background(), c, "moph", payload{Bar: "foo"}); err != nil {
		t.Fatalf("PublishTo() error = %v", err)
	}

	// The fake has no broker behind it: loop the publish back.
	ops := tr.Ops()
	last := ops[len(ops)-1]
	if last.Kind != mqtttest.OpPublish || string(last.Payload) != `{"bar":"foo"}` {
		t.Fatalf("last op = %s %s, want publish {\"bar\":\"foo\"}", last.Kind, last.Payload)
	}
	tr.Deliver(last.Topic, last.Payload)

	item := next(t, s)
	if item.Kind != subscription.ItemMessage {
		t.Fatalf("second item = %v (%v), want message", item.Kind, item.Err)
	}
	if item.Message.Payload != (payload{Bar: "foo"}) {
		t.Errorf("Payload = %+v, want {Bar:foo}", item.Message.Payload)
	}
}

// =============================================================================
// Status Tests
// =============================================================================

func TestClient_StatusReplaysLatest(t *testing.T) {
	c, _ := newTestClient(t)
	connect(t, c, testConfig())

	late := status(t, c)
	expectStatus(t, late, connection.StatusConnected)
	expectNoStatus(t, late)
}

func TestClient_ReconnectWithDifferentConfig(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())

	st := status(t, c)
	expectStatus(t, st, connection.StatusConnected)

	other := testConfig()
	other.Broker.Host = "broker.example.com"
	connect(t, c, other)

	expectStatus(t, st, connection.StatusDisconnected)
	expectStatus(t, st, connection.StatusConnected)
	if got := len(tr.Opens()); got != 2 {
		t.Errorf("transport opened %d times, want 2", got)
	}
}

func TestClient_ReconnectWithIdenticalConfig(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())

	st := status(t, c)
	expectStatus(t, st, connection.StatusConnected)

	connect(t, c, testConfig())

	expectNoStatus(t, st)
	if got := len(tr.Opens()); got != 1 {
		t.Errorf("transport opened %d times, want 1", got)
	}
}

func TestClient_StaleMessageDropped(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())

	s := subscribe[payload](t, c, "moph")
	next(t, s)

	other := testConfig()
	other.Broker.Port = 1883
	connect(t, c, other)

	// Resubscribed on the new connection.
	eventually(t, "resubscribe", func() bool {
		return tr.Count(mqtttest.OpSubscribe, "moph") == 2
	})

	tr.Emit(mqtt.Event{Kind: mqtt.EventMessage, Conn: 1, Topic: "moph", Payload: []byte(`{"bar":"old"}`)})
	tr.Deliver("moph", []byte(`{"bar":"new"}`))

	item := next(t, s)
	if item.Kind != subscription.ItemMessage || item.Message.Payload.Bar != "new" {
		t.Fatalf("item = %v %+v, want the message from the current connection", item.Kind, item.Message.Payload)
	}
	expectNoItem(t, s)
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestClient_SharedSubscription(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())

	a := subscribe[payload](t, c, "moph")
	b := subscribe[payload](t, c, "moph")
	next(t, a)
	next(t, b)

	if got := tr.Count(mqtttest.OpSubscribe, "moph"); got != 1 {
		t.Errorf("SUBSCRIBE sent %d times, want 1", got)
	}

	ctx := context.Background()
	if err := c.UnsubscribeFrom(ctx, "moph"); err != nil {
		t.Fatalf("first UnsubscribeFrom() error = %v", err)
	}
	if got := tr.Count(mqtttest.OpUnsubscribe, "moph"); got != 0 {
		t.Errorf("UNSUBSCRIBE sent while a subscriber remains")
	}

	if err := c.UnsubscribeFrom(ctx, "moph"); err != nil {
		t.Fatalf("second UnsubscribeFrom() error = %v", err)
	}
	if got := tr.Count(mqtttest.OpUnsubscribe, "moph"); got != 1 {
		t.Errorf("UNSUBSCRIBE sent %d times, want 1", got)
	}
	if len(c.Topics()) != 0 {
		t.Errorf("Topics() = %v, want none", c.Topics())
	}

	if err := c.UnsubscribeFrom(ctx, "moph"); !errors.Is(err, subscription.ErrNotSubscribed) {
		t.Errorf("third UnsubscribeFrom() error = %v, want ErrNotSubscribed", err)
	}
}

func TestClient_SubscribeQoSFromConfig(t *testing.T) {
	c, tr := newTestClient(t)

	cfg := testConfig()
	cfg.QoS = 0
	connect(t, c, cfg)

	subscribe[payload](t, c, "zero")
	subscribe[payload](t, c, "two", WithQoS(2))

	eventually(t, "subscribes", func() bool { return len(tr.Ops()) == 2 })
	for _, op := range tr.Ops() {
		want := map[string]byte{"zero": 0, "two": 2}[op.Topic]
		if op.QoS != want {
			t.Errorf("SUBSCRIBE %q QoS = %d, want %d", op.Topic, op.QoS, want)
		}
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublishTo_NotConnected(t *testing.T) {
	c, _ := newTestClient(t)

	err := PublishTo(context.Background(), c, "moph", payload{Bar: "foo"})
	if !errors.Is(err, mqtt.ErrPublishFailed) {
		t.Fatalf("PublishTo() error = %v, want ErrPublishFailed", err)
	}
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("PublishTo() error = %v, want it to wrap ErrNotConnected", err)
	}
}

func TestPublishTo_EncodeError(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())

	err := PublishTo(context.Background(), c, "moph", make(chan int))
	if !errors.Is(err, mqtt.ErrPublishFailed) {
		t.Errorf("PublishTo() error = %v, want ErrPublishFailed", err)
	}
	if got := tr.Count(mqtttest.OpPublish, "moph"); got != 0 {
		t.Errorf("PUBLISH sent %d times for an unencodable payload", got)
	}
}

func TestPublishTo_Options(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())

	if err := PublishTo(context.Background(), c, "state", payload{Bar: "on"}, WithQoS(2), WithRetain(true)); err != nil {
		t.Fatalf("PublishTo() error = %v", err)
	}

	ops := tr.Ops()
	if len(ops) != 1 {
		t.Fatalf("ops = %d, want 1", len(ops))
	}
	if ops[0].QoS != 2 || !ops[0].Retained {
		t.Errorf("PUBLISH qos=%d retained=%v, want qos=2 retained=true", ops[0].QoS, ops[0].Retained)
	}
}

func TestPublishTo_BrokerFailure(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())
	tr.SetAutoAck(false)

	errc := make(chan error, 1)
	go func() { errc <- PublishTo(context.Background(), c, "moph", payload{Bar: "foo"}) }()

	var op mqtttest.Op
	eventually(t, "publish pending", func() bool {
		var ok bool
		op, ok = tr.Pending(mqtttest.OpPublish, "moph")
		return ok
	})
	tr.Fail(op.ID, mqtt.ErrTimeout)

	select {
	case err := <-errc:
		if !errors.Is(err, mqtt.ErrPublishFailed) || !errors.Is(err, mqtt.ErrTimeout) {
			t.Errorf("PublishTo() error = %v, want ErrPublishFailed wrapping ErrTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PublishTo() did not return after the failure")
	}
}

func TestPublishTo_ContextCancelled(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())
	tr.SetAutoAck(false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := PublishTo(ctx, c, "moph", payload{Bar: "foo"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PublishTo() error = %v, want DeadlineExceeded", err)
	}
}

// =============================================================================
// End Tests
// =============================================================================

func TestClient_End(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())

	st := status(t, c)
	expectStatus(t, st, connection.StatusConnected)

	a := subscribe[payload](t, c, "moph")
	b := subscribe[payload](t, c, "other")
	next(t, a)
	next(t, b)

	if err := c.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	for _, s := range []*subscription.Stream[payload]{a, b} {
		select {
		case <-s.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("stream %q did not complete", s.Topic())
		}
		if s.Err() != nil {
			t.Errorf("stream %q Err() = %v, want nil", s.Topic(), s.Err())
		}
	}

	expectStatus(t, st, connection.StatusDisconnected)
	if _, ok := <-st.C(); ok {
		t.Error("status stream should complete after End()")
	}

	if err := c.End(); err != nil {
		t.Errorf("second End() error = %v", err)
	}
	if tr.Closes() != 1 {
		t.Errorf("transport closed %d times, want 1", tr.Closes())
	}
}

func TestClient_AfterEnd(t *testing.T) {
	c, _ := newTestClient(t)
	c.End()

	ctx := context.Background()
	if err := c.Connect(ctx, testConfig()); !errors.Is(err, ErrEnded) {
		t.Errorf("Connect() error = %v, want ErrEnded", err)
	}
	if _, err := SubscribeTo[payload](c, "moph"); !errors.Is(err, ErrEnded) {
		t.Errorf("SubscribeTo() error = %v, want ErrEnded", err)
	}
	if err := c.UnsubscribeFrom(ctx, "moph"); !errors.Is(err, ErrEnded) {
		t.Errorf("UnsubscribeFrom() error = %v, want ErrEnded", err)
	}
	err := PublishTo(ctx, c, "moph", payload{})
	if !errors.Is(err, mqtt.ErrPublishFailed) || !errors.Is(err, ErrEnded) {
		t.Errorf("PublishTo() error = %v, want ErrPublishFailed wrapping ErrEnded", err)
	}
}

func TestClient_EndFailsPendingPublish(t *testing.T) {
	c, tr := newTestClient(t)
	connect(t, c, testConfig())
	tr.SetAutoAck(false)

	errc := make(chan error, 1)
	go func() { errc <- PublishTo(context.Background(), c, "moph", payload{Bar: "foo"}) }()

	eventually(t, "publish pending", func() bool {
		_, ok := tr.Pending(mqtttest.OpPublish, "moph")
		return ok
	})
	c.End()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrEnded) {
			t.Errorf("PublishTo() error = %v, want ErrEnded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PublishTo() still waiting after End()")
	}
}

// =============================================================================
// Recorder Tests
// =============================================================================

type fakeRecorder struct {
	mu         sync.Mutex
	statuses   []connection.Status
	deliveries map[string]int
	publishes  []error
	closed     int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{deliveries: make(map[string]int)}
}

func (r *fakeRecorder) RecordStatus(s connection.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *fakeRecorder) RecordDelivery(topic string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[topic] += n
}

func (r *fakeRecorder) RecordPublish(_ string, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishes = append(r.publishes, err)
}

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func TestClient_Recorder(t *testing.T) {
	a, b := newFakeRecorder(), newFakeRecorder()
	c, tr := newTestClient(t, WithRecorder(MultiRecorder(a, nil, b)))
	connect(t, c, testConfig())

	s := subscribe[payload](t, c, "moph")
	next(t, s)

	tr.Deliver("moph", []byte(`{"bar":"x"}`))
	next(t, s)

	PublishTo(context.Background(), c, "moph", payload{Bar: "y"})
	PublishTo(context.Background(), c, "bad/#", payload{})

	if err := c.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	for _, r := range []*fakeRecorder{a, b} {
		r.mu.Lock()
		if len(r.statuses) != 2 || r.statuses[0] != connection.StatusConnected || r.statuses[1] != connection.StatusDisconnected {
			t.Errorf("statuses = %v, want [CONNECTED DISCONNECTED]", r.statuses)
		}
		if r.deliveries["moph"] != 1 {
			t.Errorf("deliveries[moph] = %d, want 1", r.deliveries["moph"])
		}
		if len(r.publishes) != 2 || r.publishes[0] != nil || !errors.Is(r.publishes[1], mqtt.ErrInvalidTopic) {
			t.Errorf("publishes = %v, want [nil, invalid topic]", r.publishes)
		}
		if r.closed != 1 {
			t.Errorf("closed %d times, want 1", r.closed)
		}
		r.mu.Unlock()
	}
}
