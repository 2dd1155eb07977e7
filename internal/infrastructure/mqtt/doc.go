// Package mqtt is the transport adapter of mqttrx.
//
// It owns one paho.mqtt.golang connection and translates connect, subscribe,
// unsubscribe and publish intents into wire operations. Everything that
// happens on the wire comes back as an Event on one ordered stream.
//
// # Architecture
//
//	pubsub.Client ──Open/Subscribe/Publish──► mqtt.Client ──► paho ──► broker
//	      ▲                                        │
//	      └──────────── Events() (ordered) ◄───────┘
//
// The adapter holds no subscription state of its own. Restoring
// subscriptions after a reconnect, reference counting and routing messages
// to consumers are the job of the subscription registry.
//
// # Operations and Results
//
// Subscribe, Unsubscribe and Publish return quickly. Input errors and
// ErrNotConnected are returned directly; everything else is reported later as
// EventAck or EventFailed carrying the caller's OpID. Allocate the id with
// NextOpID and register the waiter (see AckTracker) before issuing the call.
//
// # Connection Generations
//
// Open takes a caller-chosen ConnID. Connection and message events carry it,
// so a consumer can ignore late events from a connection it has replaced.
// Operation results are never filtered.
//
// # Security Considerations
//
//   - Use ssl or wss for anything beyond a local development broker
//   - Credentials are sent as given; never log them
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client := mqtt.New(mqtt.WithLogger(logger))
//	defer client.Close()
//
//	if err := client.Open(1, cfg.MQTT); err != nil {
//	    return err
//	}
//	for ev := range client.Events() {
//	    switch ev.Kind {
//	    case mqtt.EventConnected:
//	        client.Subscribe(client.NextOpID(), "moph", 1)
//	    case mqtt.EventMessage:
//	        log.Printf("%s: %s", ev.Topic, ev.Payload)
//	    }
//	}
package mqtt
