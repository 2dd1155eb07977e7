package pubsub

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger shared by the client, its state machine and
// its registry.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder attaches a telemetry or journal sink. Use MultiRecorder to
// attach several.
func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

// WithDefaultQoS sets the QoS used until the first Connect supplies the
// configured one.
func WithDefaultQoS(qos byte) Option {
	return func(c *Client) {
		c.defaultQoS.Store(uint32(qos))
	}
}

// CallOption configures a single SubscribeTo or PublishTo call.
type CallOption func(*callOptions)

type callOptions struct {
	qos    byte
	retain bool
}

// WithQoS overrides the default QoS for one call.
func WithQoS(qos byte) CallOption {
	return func(o *callOptions) {
		o.qos = qos
	}
}

// WithRetain asks the broker to retain a published message.
// Ignored by SubscribeTo.
func WithRetain(retain bool) CallOption {
	return func(o *callOptions) {
		o.retain = retain
	}
}
