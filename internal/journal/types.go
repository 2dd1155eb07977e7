package journal

import "time"

// Kind classifies a journal entry.
type Kind string

// Entry kinds, matching the activity.kind CHECK constraint.
const (
	KindStatus   Kind = "status"
	KindDelivery Kind = "delivery"
	KindPublish  Kind = "publish"
)

// Entry is one row of the activity journal.
type Entry struct {
	ID   int64 `json:"id"`
	Kind Kind  `json:"kind"`

	// Topic is empty for status entries.
	Topic string `json:"topic,omitempty"`

	// Detail is the status name for status entries.
	Detail string `json:"detail,omitempty"`

	// Count is the fan-out for deliveries and the payload size for publishes.
	Count int `json:"count"`

	// Error holds the failure message of a publish, if any.
	Error string `json:"error,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}

// Filter controls which entries Recent returns.
type Filter struct {
	Kind  Kind   // optional
	Topic string // optional, exact match
	Limit int    // default 50, max 500
}
