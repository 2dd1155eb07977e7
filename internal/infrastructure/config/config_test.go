package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    protocol: "tcp"
    client_id: "test-client"
  qos: 1
  keepalive: 30
journal:
  enabled: true
  path: "/tmp/journal.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}

	if cfg.MQTT.KeepAlive != 30 {
		t.Errorf("MQTT.KeepAlive = %d, want 30", cfg.MQTT.KeepAlive)
	}

	if cfg.Journal.Path != "/tmp/journal.db" {
		t.Errorf("Journal.Path = %q, want %q", cfg.Journal.Path, "/tmp/journal.db")
	}

	// Values absent from the file keep their defaults.
	if !cfg.MQTT.Reconnect.Enabled {
		t.Error("MQTT.Reconnect.Enabled = false, want default true")
	}
	if cfg.Demo.Topic != "moph" {
		t.Errorf("Demo.Topic = %q, want %q", cfg.Demo.Topic, "moph")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
mqtt:
  broker:
    host: ""
  qos: 5
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}

	// Every problem is reported, not just the first one.
	for _, want := range []string{"mqtt.broker.host", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Load() error = %v, want mention of %q", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return Default() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "unknown protocol",
			mutate:  func(c *Config) { c.MQTT.Broker.Protocol = "quic" },
			wantErr: true,
		},
		{
			name:    "protocol is case insensitive",
			mutate:  func(c *Config) { c.MQTT.Broker.Protocol = "WSS" },
			wantErr: false,
		},
		{
			name:    "negative keepalive",
			mutate:  func(c *Config) { c.MQTT.KeepAlive = -1 },
			wantErr: true,
		},
		{
			name: "telemetry enabled without url",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Bucket = "metrics"
			},
			wantErr: true,
		},
		{
			name: "journal enabled without path",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMQTTConfig_BrokerURL(t *testing.T) {
	tests := []struct {
		name   string
		broker MQTTBrokerConfig
		want   string
	}{
		{
			name:   "tcp ignores path",
			broker: MQTTBrokerConfig{Host: "localhost", Port: 1883, Protocol: "tcp", Path: "/moph"},
			want:   "tcp://localhost:1883",
		},
		{
			name:   "websocket with path",
			broker: MQTTBrokerConfig{Host: "localhost", Port: 1884, Protocol: "ws", Path: "/moph"},
			want:   "ws://localhost:1884/moph",
		},
		{
			name:   "websocket path without slash",
			broker: MQTTBrokerConfig{Host: "localhost", Port: 1884, Protocol: "ws", Path: "mqtt"},
			want:   "ws://localhost:1884/mqtt",
		},
		{
			name:   "secure websocket",
			broker: MQTTBrokerConfig{Host: "broker.example.com", Port: 443, Protocol: "WSS"},
			want:   "wss://broker.example.com:443",
		},
		{
			name:   "empty protocol defaults to tcp",
			broker: MQTTBrokerConfig{Host: "10.0.0.1", Port: 1883},
			want:   "tcp://10.0.0.1:1883",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MQTTConfig{Broker: tt.broker}
			if got := m.BrokerURL(); got != tt.want {
				t.Errorf("BrokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMQTTConfig_UsesTLS(t *testing.T) {
	for protocol, want := range map[string]bool{
		"tcp": false,
		"ws":  false,
		"ssl": true,
		"wss": true,
	} {
		m := MQTTConfig{Broker: MQTTBrokerConfig{Protocol: protocol}}
		if got := m.UsesTLS(); got != want {
			t.Errorf("UsesTLS(%q) = %v, want %v", protocol, got, want)
		}
	}
}

func TestMQTTConfig_Comparable(t *testing.T) {
	a := Default().MQTT
	b := Default().MQTT

	if a != b {
		t.Error("identical MQTT configs should compare equal")
	}

	b.Broker.Port = 1883
	if a == b {
		t.Error("MQTT configs with different ports should not compare equal")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("MQTTRX_MQTT_HOST", "mqtt.example.com")
	t.Setenv("MQTTRX_MQTT_PORT", "8883")
	t.Setenv("MQTTRX_MQTT_PROTOCOL", "ssl")
	t.Setenv("MQTTRX_MQTT_USERNAME", "testuser")
	t.Setenv("MQTTRX_MQTT_PASSWORD", "testpass")
	t.Setenv("MQTTRX_TELEMETRY_TOKEN", "secret-token")
	t.Setenv("MQTTRX_JOURNAL_PATH", "/custom/path.db")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.Broker.Protocol != "ssl" {
		t.Errorf("MQTT.Broker.Protocol = %q, want %q", cfg.MQTT.Broker.Protocol, "ssl")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.Telemetry.Token != "secret-token" {
		t.Errorf("Telemetry.Token = %q, want %q", cfg.Telemetry.Token, "secret-token")
	}

	if cfg.Journal.Path != "/custom/path.db" {
		t.Errorf("Journal.Path = %q, want %q", cfg.Journal.Path, "/custom/path.db")
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := Default()
	t.Setenv("MQTTRX_MQTT_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1884", cfg.MQTT.Broker.Port)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}

	if got := cfg.MQTT.BrokerURL(); got != "ws://localhost:1884/moph" {
		t.Errorf("Default BrokerURL() = %q, want %q", got, "ws://localhost:1884/moph")
	}

	if got := cfg.MQTT.GetKeepAlive().Seconds(); got != 5 {
		t.Errorf("GetKeepAlive() = %v, want 5", got)
	}

	if cfg.Journal.Enabled {
		t.Error("Default journal should be disabled")
	}
}
