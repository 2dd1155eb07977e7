package subscription

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a logger for subscription diagnostics.
func WithLogger(logger Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultQoS sets the QoS used when Subscribe is not given WithQoS.
func WithDefaultQoS(qos byte) Option {
	return func(r *Registry) {
		r.defaultQoS = qos
	}
}

// DeliveryHook observes every routed message: the concrete topic and the
// number of streams it was handed to. It must not call back into the Registry.
type DeliveryHook func(topic string, subscribers int)

// WithDeliveryHook registers a hook called after each routed message.
func WithDeliveryHook(hook DeliveryHook) Option {
	return func(r *Registry) {
		r.hooks = append(r.hooks, hook)
	}
}

// SubscribeOption configures a single Subscribe call.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	qos byte
}

// WithQoS requests a QoS level for the underlying SUBSCRIBE. It only takes
// effect for the first subscriber of a filter.
func WithQoS(qos byte) SubscribeOption {
	return func(o *subscribeOptions) {
		o.qos = qos
	}
}
