package connection

import "errors"

// Domain-specific errors for the connection state machine.
var (
	// ErrEnded is returned by every operation after End.
	ErrEnded = errors.New("connection: machine ended")

	// ErrInvalidConfig is returned when Connect receives a configuration that fails validation.
	ErrInvalidConfig = errors.New("connection: invalid configuration")
)
