package pubsub

import (
	"io"

	"go.uber.org/multierr"

	"github.com/nerrad567/mqttrx/internal/connection"
)

// Recorder receives activity from a Client for telemetry or auditing.
//
// Methods are called synchronously from the client's goroutines and must
// return quickly. RecordStatus runs in transition order.
type Recorder interface {
	// RecordStatus is called each time the public status changes.
	RecordStatus(status connection.Status)

	// RecordDelivery is called for each inbound message with the number of
	// streams it was routed to (zero when nothing matched).
	RecordDelivery(topic string, subscribers int)

	// RecordPublish is called once per PublishTo with its outcome. It may
	// still be called for a publish that was waiting when End ran.
	RecordPublish(topic string, bytes int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordStatus(connection.Status)   {}
func (nopRecorder) RecordDelivery(string, int)       {}
func (nopRecorder) RecordPublish(string, int, error) {}

type multiRecorder []Recorder

// MultiRecorder fans every call out to recorders in order. Nil entries are
// skipped. Closing it closes every recorder that implements io.Closer.
func MultiRecorder(recorders ...Recorder) Recorder {
	var m multiRecorder
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multiRecorder) RecordStatus(status connection.Status) {
	for _, r := range m {
		r.RecordStatus(status)
	}
}

func (m multiRecorder) RecordDelivery(topic string, subscribers int) {
	for _, r := range m {
		r.RecordDelivery(topic, subscribers)
	}
}

func (m multiRecorder) RecordPublish(topic string, bytes int, err error) {
	for _, r := range m {
		r.RecordPublish(topic, bytes, err)
	}
}

// Close closes every recorder that implements io.Closer and combines their errors.
func (m multiRecorder) Close() error {
	var err error
	for _, r := range m {
		if closer, ok := r.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}
	return err
}
