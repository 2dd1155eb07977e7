package queue

import "sync"

// Queue is an unbounded FIFO with a channel on the consuming side.
//
// Thread Safety:
//   - Push, Close, Stop and Len are safe for concurrent use.
//   - Out is intended for a single consumer.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	stopped bool

	notify chan struct{}
	done   chan struct{}
	out    chan T
}

// New creates a queue and starts its pump goroutine.
func New[T any]() *Queue[T] {
	q := &Queue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan T),
	}
	go q.pump()
	return q
}

// Push appends v to the queue.
//
// Returns:
//   - bool: false if the queue was already closed or stopped
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.signal()
	return true
}

// Out returns the consuming channel. It is closed after Close has drained
// the backlog, or right after Stop.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Len returns the number of items not yet handed to the consumer.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and lets the consumer drain what is queued.
// Calling it more than once is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Stop rejects further pushes and discards the backlog.
// Calling it more than once is a no-op.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.stopped = true
	q.items = nil
	close(q.done)
	q.mu.Unlock()
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pump moves items from the slice to the out channel, one at a time.
func (q *Queue[T]) pump() {
	defer close(q.out)

	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.notify:
			case <-q.done:
			}
			continue
		}
		next := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- next:
		case <-q.done:
			return
		}
	}
}
