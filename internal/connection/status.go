package connection

import (
	"sync"

	"github.com/nerrad567/mqttrx/internal/queue"
)

// StatusStream delivers status changes to one observer.
//
// The first value is the status current at the time the stream was opened.
// Each observer has its own unbounded buffer, so a slow reader never delays
// the machine or other observers.
type StatusStream struct {
	m    *Machine
	q    *queue.Queue[Status]
	once sync.Once
}

func newStatusStream(m *Machine, current Status) *StatusStream {
	s := &StatusStream{m: m, q: queue.New[Status]()}
	s.q.Push(current)
	return s
}

// C returns the channel of status values. It is closed after End, or
// right after Close.
func (s *StatusStream) C() <-chan Status {
	return s.q.Out()
}

// Close detaches the observer and discards anything it has not read.
func (s *StatusStream) Close() {
	s.once.Do(func() {
		s.m.removeObserver(s)
		s.q.Stop()
	})
}

// complete ends the stream after the observer has read what is queued.
func (s *StatusStream) complete() {
	s.q.Close()
}
