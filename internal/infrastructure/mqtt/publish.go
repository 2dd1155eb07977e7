package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// QoS Levels:
//   - 0: At most once (acknowledged as soon as it is written)
//   - 1: At least once (acknowledged on PUBACK)
//   - 2: Exactly once (acknowledged on PUBCOMP)
//
// The result arrives as EventAck for id, or EventFailed wrapping ErrPublishFailed.
//
// Parameters:
//   - id: Operation id from NextOpID
//   - topic: The topic to publish to (no wildcards)
//   - payload: The message payload (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPublishFailed (oversized payload)
//     or ErrNotConnected; nil once the request was handed to paho
func (c *Client) Publish(id OpID, topic string, payload []byte, qos byte, retained bool) error {
	// Validate inputs
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	client, err := c.current()
	if err != nil {
		return err
	}

	token := client.Publish(topic, qos, retained, payload)
	go c.watch(id, topic, token, ErrPublishFailed, nil)

	return nil
}
