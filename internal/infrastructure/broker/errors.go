package broker

import "errors"

// Domain-specific errors for the embedded broker.
var (
	// ErrNoListeners is returned when neither a TCP nor a WebSocket address is configured.
	ErrNoListeners = errors.New("broker: no listeners configured")

	// ErrStartFailed is returned when a listener or hook cannot be attached or started.
	ErrStartFailed = errors.New("broker: start failed")

	// ErrNotReady is returned when the broker does not accept connections in time.
	ErrNotReady = errors.New("broker: not accepting connections")
)
