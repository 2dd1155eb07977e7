// mqttrx is a command-line MQTT client built on the reactive pubsub facade.
//
// Commands:
//   - run: connect, subscribe, publish, unsubscribe and end, printing each step
//   - subscribe: stream JSON messages from a topic filter
//   - publish: send one JSON payload
//   - broker: serve an embedded development broker
//   - journal: print recorded client activity
//
// Configuration comes from configs/config.yaml, --config or MQTTRX_CONFIG.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM so every command can shut down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path.
// Uses MQTTRX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MQTTRX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
