package mqtt

import (
	"crypto/tls"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves connect_timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultOpTimeout bounds how long a subscribe, unsubscribe or publish may
	// wait for its acknowledgement.
	defaultOpTimeout = 10 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is used when the config leaves keepalive unset.
	defaultKeepAlive = 60 * time.Second

	// defaultMaxReconnectInterval caps the reconnect backoff when max_delay is unset.
	defaultMaxReconnectInterval = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// subackFailure is the SUBACK return code for a refused subscription.
	subackFailure = 0x80

	// clientIDPrefix starts every generated client identifier.
	clientIDPrefix = "mqttrx-"

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a logger for connection and handler diagnostics.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOpTimeout overrides how long operations wait for an acknowledgement.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

// resolveClientID returns the configured client id, or a random one.
func resolveClientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	return clientIDPrefix + uuid.NewString()
}

// buildClientOptions creates paho MQTT options from mqttrx config.
//
// This configures:
//   - Broker URL (tcp, ssl, ws or wss, with the WebSocket path)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Clean session and keepalive
//   - Auto-reconnect with exponential backoff (if enabled)
//   - TLS configuration for ssl and wss
//
// The initial attempt is not retried by paho; a failure is reported once as
// EventConnectFailed and left to the caller.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(clientID)

	// Authentication (if credentials provided)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(cfg.CleanSession)

	// Subscriptions are restored by the registry after every reconnect.
	opts.SetResumeSubs(false)

	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(cfg.Reconnect.Enabled)
	if cfg.Reconnect.Enabled {
		maxInterval := time.Duration(cfg.Reconnect.MaxDelay) * time.Second
		if maxInterval <= 0 {
			maxInterval = defaultMaxReconnectInterval
		}
		opts.SetMaxReconnectInterval(maxInterval)
		if initial := time.Duration(cfg.Reconnect.InitialDelay) * time.Second; initial > 0 {
			opts.SetConnectRetryInterval(initial)
		}
	}

	connectTimeout := cfg.GetConnectTimeout()
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.GetKeepAlive()
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if cfg.UsesTLS() {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
