package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
)

const (
	// readyPollInterval is how often Start probes the listeners.
	readyPollInterval = 20 * time.Millisecond

	// readyDialTimeout bounds a single probe.
	readyDialTimeout = 100 * time.Millisecond

	// defaultReadyTimeout is used when the Start context has no deadline.
	defaultReadyTimeout = 3 * time.Second
)

// Server is an embedded MQTT broker.
type Server struct {
	srv       *mqttserver.Server
	addresses []string
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes broker logs to logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a broker with the listeners named in cfg.
//
// Parameters:
//   - cfg: Listener addresses; an empty address disables that listener
//   - opts: Optional settings (WithLogger)
//
// Returns:
//   - *Server: Broker ready for Start
//   - error: ErrNoListeners, or ErrStartFailed if a hook or listener cannot be attached
func New(cfg config.BrokerConfig, opts ...Option) (*Server, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.TCPAddress == "" && cfg.WebSocketAddress == "" {
		return nil, ErrNoListeners
	}

	srv := mqttserver.New(&mqttserver.Options{
		InlineClient: true,
		Logger:       o.logger,
	})

	if err := srv.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("%w: hook: %w", ErrStartFailed, err)
	}

	s := &Server{srv: srv}

	if cfg.TCPAddress != "" {
		if err := srv.AddListener(listeners.NewTCP(listeners.Config{
			ID:      "tcp",
			Address: cfg.TCPAddress,
		})); err != nil {
			return nil, fmt.Errorf("%w: tcp listener: %w", ErrStartFailed, err)
		}
		s.addresses = append(s.addresses, cfg.TCPAddress)
	}

	if cfg.WebSocketAddress != "" {
		if err := srv.AddListener(listeners.NewWebsocket(listeners.Config{
			ID:      "ws",
			Address: cfg.WebSocketAddress,
		})); err != nil {
			return nil, fmt.Errorf("%w: websocket listener: %w", ErrStartFailed, err)
		}
		s.addresses = append(s.addresses, cfg.WebSocketAddress)
	}

	return s, nil
}

// Start serves all listeners and waits until each accepts connections.
//
// Parameters:
//   - ctx: Bounds the readiness wait (3s when it has no deadline)
//
// Returns:
//   - error: ErrStartFailed, or ErrNotReady if a listener never came up
func (s *Server) Start(ctx context.Context) error {
	if err := s.srv.Serve(); err != nil {
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultReadyTimeout)
		defer cancel()
	}

	for _, addr := range s.addresses {
		if err := waitListening(ctx, dialAddress(addr)); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotReady, addr, err)
		}
	}
	return nil
}

// Close stops all listeners and disconnects every client.
func (s *Server) Close() error {
	return s.srv.Close()
}

// Publish injects a message as if a client had published it.
func (s *Server) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return s.srv.Publish(topic, payload, retain, qos)
}

// ClientCount returns the number of clients currently connected.
func (s *Server) ClientCount() int {
	return s.srv.Clients.Len()
}

// dialAddress turns a listen address such as ":1883" into a dialable one.
func dialAddress(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// waitListening polls addr until a TCP connection succeeds or ctx ends.
func waitListening(ctx context.Context, addr string) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", addr, readyDialTimeout)
		if err == nil {
			return conn.Close()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
