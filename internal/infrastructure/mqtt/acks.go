package mqtt

import "sync"

// AckTracker matches EventAck/EventFailed results to waiting callers.
//
// Usage:
//
//	id := client.NextOpID()
//	done := tracker.Register(id)
//	if err := client.Publish(id, topic, payload, 1, false); err != nil {
//	    tracker.Forget(id)
//	    return err
//	}
//	err := <-done
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type AckTracker struct {
	mu      sync.Mutex
	waiters map[OpID]chan error
	failed  error
}

// NewAckTracker creates an empty tracker.
func NewAckTracker() *AckTracker {
	return &AckTracker{waiters: make(map[OpID]chan error)}
}

// Register returns a channel that receives exactly one value: nil when the
// operation is acknowledged, or the failure reason.
//
// After FailAll the returned channel already holds the FailAll error.
func (t *AckTracker) Register(id OpID) <-chan error {
	ch := make(chan error, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failed != nil {
		ch <- t.failed
		return ch
	}
	t.waiters[id] = ch
	return ch
}

// Resolve delivers a result event to its waiter.
//
// Returns:
//   - bool: true if a waiter was registered for ev.Op
func (t *AckTracker) Resolve(ev Event) bool {
	if !ev.IsResult() {
		return false
	}

	t.mu.Lock()
	ch, ok := t.waiters[ev.Op]
	if ok {
		delete(t.waiters, ev.Op)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	if ev.Kind == EventFailed {
		err := ev.Err
		if err == nil {
			err = ErrOperationFailed
		}
		ch <- err
	} else {
		ch <- nil
	}
	return true
}

// Forget drops the waiter for id, e.g. when the operation could not be issued
// or the caller gave up waiting.
func (t *AckTracker) Forget(id OpID) {
	t.mu.Lock()
	delete(t.waiters, id)
	t.mu.Unlock()
}

// FailAll resolves every pending waiter with err and makes later Register
// calls fail immediately with the same error.
func (t *AckTracker) FailAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed = err
	for id, ch := range t.waiters {
		ch <- err
		delete(t.waiters, id)
	}
}

// Pending returns the number of operations still awaiting a result.
func (t *AckTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
