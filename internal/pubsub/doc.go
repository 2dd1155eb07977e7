// Package pubsub is the typed publish/subscribe facade over a single MQTT
// connection.
//
// A Client ties the pieces together:
//
//	transport events ──► dispatch goroutine ──► connection.Machine (status)
//	                                        └─► subscription.Registry (streams)
//	                                        └─► publish acknowledgements
//
// Payloads are JSON on the wire and typed in Go: SubscribeTo[T] decodes
// every message as T, PublishTo[T] encodes T.
//
// # Usage
//
//	client := pubsub.New(mqtt.New(mqtt.WithLogger(log)), pubsub.WithLogger(log))
//	defer client.End()
//
//	if err := client.Connect(ctx, cfg.MQTT); err != nil {
//	    return err
//	}
//
//	stream, err := pubsub.SubscribeTo[Reading](client, "sensors/+/temp")
//	if err != nil {
//	    return err
//	}
//	for item := range stream.Items() {
//	    ...
//	}
//
//	err = pubsub.PublishTo(ctx, client, "moph", Payload{Bar: "foo"})
//
// Failures stay local: a rejected subscription ends only its own streams, a
// bad payload yields an error item on the affected stream, and a failed
// publish is returned to its caller only.
package pubsub
