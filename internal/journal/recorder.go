package journal

import (
	"context"
	"time"

	"github.com/nerrad567/mqttrx/internal/connection"
	"github.com/nerrad567/mqttrx/internal/queue"
)

// writeTimeout bounds each insert made by the Recorder.
const writeTimeout = 5 * time.Second

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets a logger for failed inserts.
func WithLogger(logger Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Recorder writes pubsub client activity to a Repository. It implements
// pubsub.Recorder.
//
// Entries are queued and inserted by a single goroutine, so the caller's
// dispatch path never waits on the database. Close flushes the queue.
type Recorder struct {
	repo   Repository
	logger Logger
	q      *queue.Queue[Entry]
	done   chan struct{}
}

// NewRecorder starts a recorder writing to repo.
func NewRecorder(repo Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		repo:   repo,
		logger: nopLogger{},
		q:      queue.New[Entry](),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)

	for entry := range r.q.Out() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.repo.Record(ctx, &entry); err != nil {
			r.logger.Warn("journal write failed", "kind", string(entry.Kind), "topic", entry.Topic, "error", err)
		}
		cancel()
	}
}

func (r *Recorder) push(e Entry) {
	e.RecordedAt = time.Now().UTC()
	r.q.Push(e)
}

// RecordStatus journals a status change.
func (r *Recorder) RecordStatus(status connection.Status) {
	r.push(Entry{Kind: KindStatus, Detail: status.String()})
}

// RecordDelivery journals an inbound message and its fan-out.
func (r *Recorder) RecordDelivery(topic string, subscribers int) {
	r.push(Entry{Kind: KindDelivery, Topic: topic, Count: subscribers})
}

// RecordPublish journals a publish outcome.
func (r *Recorder) RecordPublish(topic string, bytes int, err error) {
	e := Entry{Kind: KindPublish, Topic: topic, Count: bytes}
	if err != nil {
		e.Error = err.Error()
	}
	r.push(e)
}

// Close stops accepting entries and waits until the queued ones are written.
// Calling it more than once is safe.
func (r *Recorder) Close() error {
	r.q.Close()
	<-r.done
	return nil
}
