package pubsub

import "github.com/nerrad567/mqttrx/internal/connection"

// ErrEnded is returned by every operation after End. It is the same value
// as connection.ErrEnded, so either can be used with errors.Is.
var ErrEnded = connection.ErrEnded
