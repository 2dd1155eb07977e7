package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mqttrx/internal/connection"
)

// Measurement names written by the recorder methods.
const (
	MeasurementStatus   = "mqttrx_status"
	MeasurementDelivery = "mqttrx_delivery"
	MeasurementPublish  = "mqttrx_publish"
)

// RecordStatus writes a connection status change.
//
// Tags: status ("CONNECTED" or "DISCONNECTED").
// Fields: connected (1 or 0), so the series can be graphed directly.
func (c *Client) RecordStatus(status connection.Status) {
	connected := 0
	if status == connection.StatusConnected {
		connected = 1
	}

	c.WritePoint(MeasurementStatus,
		map[string]string{"status": status.String()},
		map[string]interface{}{"connected": connected},
	)
}

// RecordDelivery writes one inbound message and its fan-out.
//
// Tags: topic (the concrete topic, not the filter).
// Fields: subscribers (streams the message was routed to, 0 when unmatched).
func (c *Client) RecordDelivery(topic string, subscribers int) {
	c.WritePoint(MeasurementDelivery,
		map[string]string{"topic": topic},
		map[string]interface{}{"subscribers": subscribers},
	)
}

// RecordPublish writes the outcome of one publish.
//
// Tags: topic, outcome ("ok" or "error").
// Fields: bytes (encoded payload size), error (message, failures only).
func (c *Client) RecordPublish(topic string, bytes int, err error) {
	outcome := "ok"
	fields := map[string]interface{}{"bytes": bytes}
	if err != nil {
		outcome = "error"
		fields["error"] = err.Error()
	}

	c.WritePoint(MeasurementPublish,
		map[string]string{"topic": topic, "outcome": outcome},
		fields,
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the recorder methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("mqttrx_session",
//	    map[string]string{"broker": "ws://localhost:1884/moph"},
//	    map[string]interface{}{"subscriptions": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
