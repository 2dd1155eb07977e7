// Package influxdb provides InfluxDB connectivity for mqttrx telemetry.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing, and health monitoring.
//
// # Purpose
//
// A *Client implements pubsub.Recorder. Attached with pubsub.WithRecorder it
// records:
//   - mqttrx_status: every CONNECTED/DISCONNECTED change
//   - mqttrx_delivery: every inbound message and how many streams got it
//   - mqttrx_publish: every publish with its size and outcome
//
// # Usage
//
//	telemetry, err := influxdb.Connect(cfg.Telemetry)
//	if err != nil {
//	    return err
//	}
//	telemetry.SetOnError(func(err error) {
//	    log.Warn("telemetry write failed", "error", err)
//	})
//
//	client := pubsub.New(transport, pubsub.WithRecorder(telemetry))
//	defer client.End() // also flushes and closes telemetry
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via a
// callback. Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval), so recording from the dispatch path never waits on the
// network.
package influxdb
