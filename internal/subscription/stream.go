package subscription

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttrx/internal/queue"
)

// subscriber is the registry's view of a stream, independent of T.
type subscriber interface {
	grant(g Grant)
	deliver(ev mqtt.Event)
	finish(err error)
}

// Stream is one logical subscription: a Grant, then decoded messages, until
// the subscription ends.
//
// The Items channel is closed when the stream ends:
//   - Unsubscribe or Cancel (by the owner)
//   - Registry.Unsubscribe releasing this hold
//   - Registry.Close (completion, Err returns nil)
//   - a failed SUBSCRIBE (Err wraps ErrSubscribeFailed)
//
// Read Items until it is closed, or call Cancel to stop early.
type Stream[T any] struct {
	reg    *Registry
	filter string
	decode Decoder[T]
	q      *queue.Queue[Item[T]]
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newStream[T any](r *Registry, filter string, decode Decoder[T]) *Stream[T] {
	return &Stream[T]{
		reg:    r,
		filter: filter,
		decode: decode,
		q:      queue.New[Item[T]](),
		done:   make(chan struct{}),
	}
}

// Items returns the stream's channel of grants, messages and decode errors.
func (s *Stream[T]) Items() <-chan Item[T] {
	return s.q.Out()
}

// Topic returns the filter this stream subscribed to.
func (s *Stream[T]) Topic() string {
	return s.filter
}

// Done is closed when the stream has ended.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream ended: nil for a normal completion.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel releases this subscription without waiting for the broker and
// discards items not yet read. Calling it on an ended stream is a no-op.
func (s *Stream[T]) Cancel() {
	s.q.Stop()
	if err := s.reg.release(context.Background(), s.filter, s, false); err != nil {
		s.reg.logger.Warn("release on cancel failed", "topic", s.filter, "error", err)
	}
}

// Unsubscribe releases this subscription. When it was the last one on the
// filter, it waits for the broker to acknowledge the UNSUBSCRIBE.
//
// Returns:
//   - error: ErrUnsubscribeFailed (wrapped) or ctx.Err()
func (s *Stream[T]) Unsubscribe(ctx context.Context) error {
	return s.reg.release(ctx, s.filter, s, true)
}

func (s *Stream[T]) grant(g Grant) {
	s.q.Push(Item[T]{Kind: ItemGrant, Grant: g})
}

func (s *Stream[T]) deliver(ev mqtt.Event) {
	v, err := s.decode(ev.Payload)
	if err != nil {
		s.q.Push(Item[T]{
			Kind: ItemError,
			Err:  fmt.Errorf("%w: topic %s: %w", ErrDecode, ev.Topic, err),
		})
		return
	}

	s.q.Push(Item[T]{
		Kind: ItemMessage,
		Message: Message[T]{
			Topic:    ev.Topic,
			Payload:  v,
			QoS:      ev.QoS,
			Retained: ev.Retained,
		},
	})
}

func (s *Stream[T]) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		s.q.Close()
		close(s.done)
	})
}
