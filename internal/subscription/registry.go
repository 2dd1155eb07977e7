package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt"
)

// maxEarlyMessages bounds the messages held for a filter whose SUBACK has not
// been processed yet. The oldest are dropped beyond it.
const maxEarlyMessages = 256

// Transport is the part of the mqtt adapter the registry drives.
type Transport interface {
	NextOpID() mqtt.OpID
	Subscribe(id mqtt.OpID, filter string, qos byte) error
	Unsubscribe(id mqtt.OpID, filter string) error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// record is the shared state of one topic filter.
type record struct {
	filter string
	qos    byte

	// subs holds the logical subscribers, oldest first. len(subs) is the refcount.
	subs []subscriber

	// op is the in-flight SUBSCRIBE, zero when none.
	op mqtt.OpID

	// granted is set by the first SUBACK and survives reconnects.
	granted bool

	// early holds messages that arrived before the first SUBACK was processed.
	early []mqtt.Event
}

// Registry multiplexes logical subscriptions onto one protocol subscription
// per topic filter.
//
// The first subscriber of a filter causes a SUBSCRIBE; later subscribers
// share it. The last one to leave causes an UNSUBSCRIBE. Every subscriber
// receives exactly one Grant before any message.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Every mutation and every event is applied under one mutex, so
//     overlapping subscribe and unsubscribe calls are linearised.
type Registry struct {
	transport  Transport
	logger     Logger
	hooks      []DeliveryHook
	defaultQoS byte

	mu        sync.Mutex
	records   map[string]*record
	inflight  map[mqtt.OpID]*record
	connected bool
	closed    bool

	unsubs *mqtt.AckTracker
}

// NewRegistry creates an empty registry. It issues nothing until it sees
// mqtt.EventConnected through HandleEvent.
//
// Parameters:
//   - transport: Issues SUBSCRIBE and UNSUBSCRIBE
//   - opts: Optional settings (WithLogger, WithDefaultQoS, WithDeliveryHook)
func NewRegistry(transport Transport, opts ...Option) *Registry {
	r := &Registry{
		transport:  transport,
		logger:     nopLogger{},
		defaultQoS: 1,
		records:    make(map[string]*record),
		inflight:   make(map[mqtt.OpID]*record),
		unsubs:     mqtt.NewAckTracker(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe opens a logical subscription on filter and decodes its payloads
// with decode.
//
// Only the first subscriber of a filter causes a SUBSCRIBE (sent as soon as
// the connection is up). A subscriber joining a filter that is already
// granted receives its Grant immediately.
//
// Parameters:
//   - r: Registry to subscribe through
//   - filter: Topic filter, wildcards allowed
//   - decode: Payload decoder for this stream
//   - opts: Optional settings (WithQoS)
//
// Returns:
//   - *Stream[T]: The new logical subscription
//   - error: ErrRegistryClosed, ErrNilDecoder, mqtt.ErrInvalidTopic,
//     mqtt.ErrInvalidQoS or ErrSubscribeFailed
func Subscribe[T any](r *Registry, filter string, decode Decoder[T], opts ...SubscribeOption) (*Stream[T], error) {
	if decode == nil {
		return nil, ErrNilDecoder
	}
	if err := mqtt.ValidateFilter(filter); err != nil {
		return nil, err
	}

	o := subscribeOptions{qos: r.defaultQoS}
	for _, opt := range opts {
		opt(&o)
	}
	if o.qos > 2 {
		return nil, mqtt.ErrInvalidQoS
	}

	s := newStream(r, filter, decode)
	if err := r.add(s, filter, o.qos); err != nil {
		s.q.Stop()
		return nil, err
	}
	return s, nil
}

func (r *Registry) add(sub subscriber, filter string, qos byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	if rec, ok := r.records[filter]; ok {
		rec.subs = append(rec.subs, sub)
		if rec.granted {
			sub.grant(Grant{Topic: rec.filter, QoS: rec.qos})
		}
		r.logger.Debug("subscriber joined", "topic", filter, "refcount", len(rec.subs))
		return nil
	}

	rec := &record{filter: filter, qos: qos, subs: []subscriber{sub}}
	r.records[filter] = rec

	if r.connected {
		if err := r.issueSubscribe(rec); err != nil {
			delete(r.records, filter)
			return err
		}
	}
	r.logger.Debug("subscription created", "topic", filter, "qos", qos, "connected", r.connected)
	return nil
}

// issueSubscribe sends the SUBSCRIBE for rec. ErrNotConnected is not an
// error: the record waits for the next EventConnected. Caller must hold mu.
func (r *Registry) issueSubscribe(rec *record) error {
	id := r.transport.NextOpID()
	rec.op = id
	r.inflight[id] = rec

	err := r.transport.Subscribe(id, rec.filter, rec.qos)
	if err == nil {
		return nil
	}

	delete(r.inflight, id)
	rec.op = 0
	if errors.Is(err, mqtt.ErrNotConnected) {
		r.connected = false
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, rec.filter, err)
}

// Unsubscribe releases the oldest logical subscription on filter and
// completes its stream. When it was the last one, the UNSUBSCRIBE is sent
// and Unsubscribe waits for the broker's acknowledgement. While
// disconnected the record is simply dropped.
//
// Parameters:
//   - ctx: Bounds the wait for the acknowledgement
//   - filter: The filter given to Subscribe
//
// Returns:
//   - error: ErrNotSubscribed, ErrRegistryClosed, ErrUnsubscribeFailed
//     (wrapped) or ctx.Err()
func (r *Registry) Unsubscribe(ctx context.Context, filter string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	rec, ok := r.records[filter]
	if !ok || len(rec.subs) == 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, filter)
	}
	return r.releaseLocked(ctx, rec, rec.subs[0], true)
}

// release drops one specific subscriber. Releasing one that is already
// gone is a no-op.
func (r *Registry) release(ctx context.Context, filter string, sub subscriber, wait bool) error {
	r.mu.Lock()
	rec, ok := r.records[filter]
	if !ok || r.closed {
		r.mu.Unlock()
		sub.finish(nil)
		return nil
	}
	return r.releaseLocked(ctx, rec, sub, wait)
}

// releaseLocked is entered with mu held and returns with it released.
func (r *Registry) releaseLocked(ctx context.Context, rec *record, sub subscriber, wait bool) error {
	idx := slices.IndexFunc(rec.subs, func(s subscriber) bool { return s == sub })
	if idx < 0 {
		r.mu.Unlock()
		sub.finish(nil)
		return nil
	}

	rec.subs = slices.Delete(rec.subs, idx, idx+1)
	sub.finish(nil)

	if len(rec.subs) > 0 {
		r.logger.Debug("subscriber left", "topic", rec.filter, "refcount", len(rec.subs))
		r.mu.Unlock()
		return nil
	}

	delete(r.records, rec.filter)
	if rec.op != 0 {
		delete(r.inflight, rec.op)
		rec.op = 0
	}

	if !r.connected {
		r.logger.Debug("subscription dropped while disconnected", "topic", rec.filter)
		r.mu.Unlock()
		return nil
	}

	id := r.transport.NextOpID()
	var done <-chan error
	if wait {
		done = r.unsubs.Register(id)
	}

	if err := r.transport.Unsubscribe(id, rec.filter); err != nil {
		r.unsubs.Forget(id)
		r.mu.Unlock()
		if errors.Is(err, mqtt.ErrNotConnected) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, rec.filter, err)
	}
	r.logger.Debug("unsubscribe sent", "topic", rec.filter)
	r.mu.Unlock()

	if !wait {
		return nil
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, rec.filter, err)
		}
		return nil
	case <-ctx.Done():
		r.unsubs.Forget(id)
		return ctx.Err()
	}
}

// HandleEvent applies one transport event.
//
//   - EventConnected: SUBSCRIBE is (re)issued for every filter; filters that
//     were granted before are restored without a second Grant
//   - EventConnectionLost, EventConnectFailed: in-flight SUBSCRIBEs are forgotten
//   - EventAck / EventFailed: SUBACK grants or fails the filter's streams;
//     other results resolve pending UNSUBSCRIBE waits
//   - EventMessage: routed to every filter matching the topic
func (r *Registry) HandleEvent(ev mqtt.Event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	var delivered int
	switch ev.Kind {
	case mqtt.EventConnected:
		r.connected = true
		r.restore()

	case mqtt.EventConnectionLost, mqtt.EventConnectFailed:
		r.connected = false
		for id, rec := range r.inflight {
			rec.op = 0
			rec.early = nil
			delete(r.inflight, id)
		}

	case mqtt.EventAck:
		rec := r.takeInflight(ev.Op)
		if rec == nil {
			r.mu.Unlock()
			r.unsubs.Resolve(ev)
			return
		}
		r.grantRecord(rec)

	case mqtt.EventFailed:
		rec := r.takeInflight(ev.Op)
		if rec == nil {
			r.mu.Unlock()
			r.unsubs.Resolve(ev)
			return
		}
		r.logger.Warn("subscribe failed", "topic", rec.filter, "error", ev.Err)
		r.failRecord(rec, fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, rec.filter, ev.Err))

	case mqtt.EventMessage:
		delivered = r.route(ev)
	}
	r.mu.Unlock()

	if ev.Kind == mqtt.EventMessage {
		for _, hook := range r.hooks {
			hook(ev.Topic, delivered)
		}
	}
}

// restore issues SUBSCRIBE for every record. An EventConnected always
// starts a fresh session, so SUBSCRIBEs still in flight belong to a previous
// connection and their results are ignored. Caller must hold mu.
func (r *Registry) restore() {
	for _, rec := range r.records {
		if rec.op != 0 {
			delete(r.inflight, rec.op)
			rec.op = 0
		}
		rec.early = nil
		if err := r.issueSubscribe(rec); err != nil {
			r.logger.Warn("restoring subscription failed", "topic", rec.filter, "error", err)
			r.failRecord(rec, err)
		}
		if !r.connected {
			return
		}
	}
}

// takeInflight resolves a SUBSCRIBE op id to its record. Caller must hold mu.
func (r *Registry) takeInflight(id mqtt.OpID) *record {
	rec, ok := r.inflight[id]
	if !ok {
		return nil
	}
	delete(r.inflight, id)
	rec.op = 0
	return rec
}

// grantRecord delivers the Grant to every waiting subscriber, then any
// messages that overtook the SUBACK. Caller must hold mu.
func (r *Registry) grantRecord(rec *record) {
	if rec.granted {
		r.logger.Debug("subscription restored", "topic", rec.filter)
		return
	}

	rec.granted = true
	g := Grant{Topic: rec.filter, QoS: rec.qos}
	for _, s := range rec.subs {
		s.grant(g)
	}

	for _, ev := range rec.early {
		for _, s := range rec.subs {
			s.deliver(ev)
		}
	}
	rec.early = nil

	r.logger.Debug("subscription granted", "topic", rec.filter, "refcount", len(rec.subs))
}

// failRecord ends every stream of rec with err and forgets rec.
// Caller must hold mu.
func (r *Registry) failRecord(rec *record, err error) {
	delete(r.records, rec.filter)
	if rec.op != 0 {
		delete(r.inflight, rec.op)
		rec.op = 0
	}
	for _, s := range rec.subs {
		s.finish(err)
	}
	rec.subs = nil
}

// route hands a message to every subscriber of every matching filter.
// Caller must hold mu.
func (r *Registry) route(ev mqtt.Event) int {
	delivered := 0
	for _, rec := range r.records {
		if !mqtt.MatchTopic(rec.filter, ev.Topic) {
			continue
		}
		if !rec.granted {
			if rec.op != 0 {
				rec.early = append(rec.early, ev)
				if len(rec.early) > maxEarlyMessages {
					rec.early = rec.early[1:]
				}
			}
			continue
		}
		for _, s := range rec.subs {
			s.deliver(ev)
		}
		delivered += len(rec.subs)
	}
	return delivered
}

// Close completes every stream and rejects further use. In-flight
// Unsubscribe calls return ErrRegistryClosed. Calling Close more than once
// is a no-op.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, rec := range r.records {
		for _, s := range rec.subs {
			s.finish(nil)
		}
	}
	clear(r.records)
	clear(r.inflight)
	r.mu.Unlock()

	r.unsubs.FailAll(ErrRegistryClosed)
}

// Count returns the number of filters with at least one subscriber.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// RefCount returns the number of logical subscribers on filter.
func (r *Registry) RefCount(filter string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[filter]; ok {
		return len(rec.subs)
	}
	return 0
}

// Topics returns the subscribed filters in sorted order.
func (r *Registry) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := make([]string, 0, len(r.records))
	for filter := range r.records {
		topics = append(topics, filter)
	}
	slices.Sort(topics)
	return topics
}
