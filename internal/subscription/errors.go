package subscription

import "errors"

// Domain-specific errors for the subscription registry.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSubscribeFailed terminates the streams of a filter whose SUBSCRIBE was
	// rejected or timed out.
	ErrSubscribeFailed = errors.New("subscription: subscribe failed")

	// ErrUnsubscribeFailed is returned when the UNSUBSCRIBE for the last
	// subscriber of a filter fails.
	ErrUnsubscribeFailed = errors.New("subscription: unsubscribe failed")

	// ErrDecode marks a payload that could not be decoded. It arrives as a
	// non-fatal ItemError on the affected stream only.
	ErrDecode = errors.New("subscription: decode failed")

	// ErrNotSubscribed is returned by Unsubscribe for a filter with no subscribers.
	ErrNotSubscribed = errors.New("subscription: not subscribed")

	// ErrRegistryClosed is returned by every operation after Close.
	ErrRegistryClosed = errors.New("subscription: registry closed")

	// ErrNilDecoder is returned when Subscribe is called without a decoder.
	ErrNilDecoder = errors.New("subscription: decoder cannot be nil")
)
