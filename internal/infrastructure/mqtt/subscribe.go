package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe sends a SUBSCRIBE for the filter.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "sensors/+/temp" matches any sensor
//   - # (multi-level): "sensors/#" matches everything below sensors
//
// Inbound messages for the filter arrive as EventMessage. The SUBACK arrives
// as EventAck for id, or EventFailed wrapping ErrSubscribeFailed (with
// ErrSubscribeRejected when the broker refused the filter, ErrTimeout when no
// SUBACK came back in time).
//
// Parameters:
//   - id: Operation id from NextOpID
//   - filter: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS or ErrNotConnected; nil once the
//     request was handed to paho
func (c *Client) Subscribe(id OpID, filter string, qos byte) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	client, err := c.current()
	if err != nil {
		return err
	}

	// A nil callback routes messages to the default publish handler.
	token := client.Subscribe(filter, qos, nil)
	go c.watch(id, filter, token, ErrSubscribeFailed, func() error {
		return subackError(token, filter)
	})

	return nil
}

// subackError inspects the SUBACK return code for the filter.
func subackError(token pahomqtt.Token, filter string) error {
	st, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return nil
	}
	if code, found := st.Result()[filter]; found && code == subackFailure {
		return fmt.Errorf("%w: %s", ErrSubscribeRejected, filter)
	}
	return nil
}

// Unsubscribe sends an UNSUBSCRIBE for the filter.
//
// The UNSUBACK arrives as EventAck for id, or EventFailed wrapping
// ErrUnsubscribeFailed.
//
// Parameters:
//   - id: Operation id from NextOpID
//   - filter: The exact filter that was subscribed to
//
// Returns:
//   - error: ErrInvalidTopic or ErrNotConnected; nil once the request was handed to paho
func (c *Client) Unsubscribe(id OpID, filter string) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}

	client, err := c.current()
	if err != nil {
		return err
	}

	token := client.Unsubscribe(filter)
	go c.watch(id, filter, token, ErrUnsubscribeFailed, nil)

	return nil
}
