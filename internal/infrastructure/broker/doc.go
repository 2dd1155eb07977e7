// Package broker runs an embedded MQTT broker for development and tests.
//
// It wraps mochi-mqtt/server with the two listeners mqttrx needs:
//
//   - TCP (default :1883)
//   - WebSocket (default :1884, any path, e.g. ws://localhost:1884/moph)
//
// Every client is allowed in. The broker is not meant for production use.
//
// # Usage
//
//	srv, err := broker.New(cfg.Broker, broker.WithLogger(logger.Logger))
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Close()
package broker
