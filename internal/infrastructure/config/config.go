package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for mqttrx.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Logging   LoggingConfig  `yaml:"logging"`
	Telemetry InfluxDBConfig `yaml:"telemetry"`
	Journal   DatabaseConfig `yaml:"journal"`
	Broker    BrokerConfig   `yaml:"broker"`
	Demo      DemoConfig     `yaml:"demo"`
}

// MQTTConfig contains MQTT broker connection settings.
//
// The struct is comparable on purpose: the connection state machine uses
// equality to detect a repeated connect with an identical configuration.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	KeepAlive      int                 `yaml:"keepalive"`
	CleanSession   bool                `yaml:"clean_session"`
	ConnectTimeout int                 `yaml:"connect_timeout"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Protocol selects the transport: tcp, ssl, ws or wss.
	Protocol string `yaml:"protocol"`

	// Path is the HTTP path for WebSocket transports (e.g. "/mqtt").
	// Ignored for tcp and ssl.
	Path string `yaml:"path"`

	// ClientID identifies the session on the broker.
	// A random id is generated when empty.
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"`
	MaxDelay     int  `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for client telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite settings for the activity journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BrokerConfig contains settings for the embedded development broker.
type BrokerConfig struct {
	TCPAddress       string `yaml:"tcp_address"`
	WebSocketAddress string `yaml:"websocket_address"`
}

// DemoConfig contains the settings of the "run" walkthrough command.
type DemoConfig struct {
	Topic    string `yaml:"topic"`
	Messages int    `yaml:"messages"`
	Interval int    `yaml:"interval_ms"`
}

// Supported values for MQTTBrokerConfig.Protocol.
const (
	ProtocolTCP = "tcp"
	ProtocolSSL = "ssl"
	ProtocolWS  = "ws"
	ProtocolWSS = "wss"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTRX_SECTION_KEY
// For example: MQTTRX_MQTT_HOST, MQTTRX_JOURNAL_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// The MQTT defaults match a local WebSocket broker at ws://localhost:1884/moph,
// which is also what the embedded broker listens on.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1884,
				Protocol: ProtocolWS,
				Path:     "/moph",
			},
			QoS:            1,
			KeepAlive:      5,
			CleanSession:   true,
			ConnectTimeout: 10,
			Reconnect: MQTTReconnectConfig{
				Enabled:      true,
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Journal: DatabaseConfig{
			Path:        "./data/mqttrx.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Broker: BrokerConfig{
			TCPAddress:       ":1883",
			WebSocketAddress: ":1884",
		},
		Demo: DemoConfig{
			Topic:    "moph",
			Messages: 3,
			Interval: 500,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTRX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("MQTTRX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTTRX_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MQTTRX_MQTT_PROTOCOL"); v != "" {
		cfg.MQTT.Broker.Protocol = v
	}
	if v := os.Getenv("MQTTRX_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("MQTTRX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTTRX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Telemetry
	if v := os.Getenv("MQTTRX_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Journal
	if v := os.Getenv("MQTTRX_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// Logging
	if v := os.Getenv("MQTTRX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.MQTT.problems()...)

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Bucket == "" {
			errs = append(errs, "telemetry.bucket is required when telemetry is enabled")
		}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Validate checks the MQTT section on its own.
// The connection state machine calls it before opening a connection.
func (m MQTTConfig) Validate() error {
	if errs := m.problems(); len(errs) > 0 {
		return fmt.Errorf("mqtt configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m MQTTConfig) problems() []string {
	var errs []string

	if m.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if m.Broker.Port < 1 || m.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	switch strings.ToLower(m.Broker.Protocol) {
	case ProtocolTCP, ProtocolSSL, ProtocolWS, ProtocolWSS:
	default:
		errs = append(errs, "mqtt.broker.protocol must be one of tcp, ssl, ws, wss")
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if m.KeepAlive < 0 {
		errs = append(errs, "mqtt.keepalive must not be negative")
	}

	return errs
}

// BrokerURL returns the broker address in the form paho expects,
// e.g. "tcp://localhost:1883" or "ws://localhost:1884/moph".
func (m MQTTConfig) BrokerURL() string {
	scheme := strings.ToLower(m.Broker.Protocol)
	if scheme == "" {
		scheme = ProtocolTCP
	}

	url := fmt.Sprintf("%s://%s:%d", scheme, m.Broker.Host, m.Broker.Port)
	if (scheme == ProtocolWS || scheme == ProtocolWSS) && m.Broker.Path != "" {
		if !strings.HasPrefix(m.Broker.Path, "/") {
			url += "/"
		}
		url += m.Broker.Path
	}
	return url
}

// UsesTLS reports whether the configured protocol is encrypted.
func (m MQTTConfig) UsesTLS() bool {
	p := strings.ToLower(m.Broker.Protocol)
	return p == ProtocolSSL || p == ProtocolWSS
}

// GetKeepAlive returns the keepalive interval as a Duration.
func (m MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(m.KeepAlive) * time.Second
}

// GetConnectTimeout returns the connect timeout as a Duration.
func (m MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeout) * time.Second
}

// GetDemoInterval returns the publish interval of the walkthrough command.
func (c *Config) GetDemoInterval() time.Duration {
	return time.Duration(c.Demo.Interval) * time.Millisecond
}
