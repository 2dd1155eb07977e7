package subscription

import "fmt"

// ItemKind discriminates the variants of Item.
type ItemKind int

// Item kinds.
const (
	// ItemGrant is the one-time confirmation that the subscription is live.
	ItemGrant ItemKind = iota + 1

	// ItemMessage carries a decoded payload.
	ItemMessage

	// ItemError reports a payload that could not be decoded. The stream stays open.
	ItemError
)

// String returns the kind name for logging.
func (k ItemKind) String() string {
	switch k {
	case ItemGrant:
		return "grant"
	case ItemMessage:
		return "message"
	case ItemError:
		return "error"
	default:
		return fmt.Sprintf("item(%d)", int(k))
	}
}

// Grant confirms that a logical subscription is receiving live messages.
type Grant struct {
	Topic string
	QoS   byte
}

// Message is one inbound payload decoded as T.
type Message[T any] struct {
	// Topic is the concrete topic the message was published on. It differs
	// from the stream's filter when the filter has wildcards.
	Topic    string
	Payload  T
	QoS      byte
	Retained bool
}

// Item is one element of a subscription stream. Exactly one of Grant,
// Message or Err is meaningful, as selected by Kind.
//
//	for item := range stream.Items() {
//	    switch item.Kind {
//	    case subscription.ItemGrant:
//	        log.Println("subscribed to", item.Grant.Topic)
//	    case subscription.ItemMessage:
//	        handle(item.Message.Payload)
//	    case subscription.ItemError:
//	        log.Println("bad payload:", item.Err)
//	    }
//	}
type Item[T any] struct {
	Kind    ItemKind
	Grant   Grant
	Message Message[T]
	Err     error
}
