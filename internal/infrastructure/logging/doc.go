// Package logging provides structured logging for mqttrx.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the client core and the CLI.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("connecting", "broker", cfg.MQTT.BrokerURL())
//	logger.Error("publish failed", "topic", topic, "error", err)
//
// # Security
//
// Never log broker passwords or telemetry tokens.
package logging
