package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt"
)

// Opener is the part of the transport the machine drives.
type Opener interface {
	Open(conn mqtt.ConnID, cfg config.MQTTConfig) error
	Close() error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

// TransitionHook observes every state change. It runs in the order the
// changes happened and must not call Connect or End.
type TransitionHook func(from, to State)

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets a logger for state transitions.
func WithLogger(logger Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTransitionHook registers a hook called after every state change.
func WithTransitionHook(hook TransitionHook) Option {
	return func(m *Machine) {
		m.hooks = append(m.hooks, hook)
	}
}

// Machine tracks the lifecycle of the one connection shared by all consumers.
//
// It derives its state from transport events passed to HandleEvent and
// broadcasts the public Status to every StatusStream whenever it changes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Connect and End are serialised: at most one connection attempt is
//     being set up at any time.
type Machine struct {
	transport Opener
	logger    Logger
	hooks     []TransitionHook

	// opMu serialises Connect and End.
	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	cfg       config.MQTTConfig
	hasCfg    bool
	conn      mqtt.ConnID
	lastErr   error
	ended     bool
	changed   chan struct{}
	observers map[*StatusStream]struct{}

	// hookMu keeps hook calls in transition order without holding mu.
	hookMu sync.Mutex
}

type transition struct {
	from, to State
}

// NewMachine creates a machine in StateDisconnected.
//
// Parameters:
//   - transport: Opens and closes the underlying connection
//   - opts: Optional settings (WithLogger, WithTransitionHook)
func NewMachine(transport Opener, opts ...Option) *Machine {
	m := &Machine{
		transport: transport,
		logger:    nopLogger{},
		state:     StateDisconnected,
		changed:   make(chan struct{}),
		observers: make(map[*StatusStream]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect starts a connection with cfg.
//
// Behaviour by current state:
//   - Same config while connecting, connected or reconnecting: no-op
//   - Otherwise: the current connection (if any) is torn down first, which
//     consumers observe as StatusDisconnected when it was connected, then a
//     new attempt starts and the state becomes StateConnecting
//
// Connect returns once the attempt has started; use WaitConnected or the
// status stream to learn the outcome.
//
// Parameters:
//   - ctx: Checked before any work is done
//   - cfg: MQTT configuration
//
// Returns:
//   - error: ErrEnded, ErrInvalidConfig, or mqtt.ErrConnectionFailed when the
//     transport rejects the attempt
func (m *Machine) Connect(ctx context.Context, cfg config.MQTTConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return ErrEnded
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if m.hasCfg && m.cfg == cfg && m.state != StateDisconnected {
		m.mu.Unlock()
		m.logger.Debug("connect ignored, identical configuration", "broker", cfg.BrokerURL())
		return nil
	}

	var changes []transition
	if tr, ok := m.setState(StateDisconnected); ok {
		changes = append(changes, tr)
	}
	if tr, ok := m.setState(StateConnecting); ok {
		changes = append(changes, tr)
	}
	m.conn++
	conn := m.conn
	m.cfg = cfg
	m.hasCfg = true
	m.lastErr = nil
	m.unlockAndFire(changes...)

	m.logger.Info("connecting", "broker", cfg.BrokerURL(), "conn", conn)

	err := m.transport.Open(conn, cfg)
	if err == nil {
		return nil
	}

	if !errors.Is(err, mqtt.ErrConnectionFailed) {
		err = fmt.Errorf("%w: %w", mqtt.ErrConnectionFailed, err)
	}

	m.mu.Lock()
	changes = changes[:0]
	if m.conn == conn && !m.ended {
		m.lastErr = err
		if tr, ok := m.setState(StateDisconnected); ok {
			changes = append(changes, tr)
		}
	}
	m.unlockAndFire(changes...)

	return err
}

// HandleEvent applies a transport event.
//
// Transitions:
//   - EventConnected: -> StateConnected
//   - EventConnectionLost while connected: -> StateReconnecting if automatic
//     reconnect is enabled, else StateDisconnected
//   - EventConnectFailed: -> StateDisconnected, the error is kept in LastError
//
// Returns:
//   - bool: false if the event belongs to a replaced connection (or the
//     machine has ended) and should be ignored by other consumers too.
//     Operation results always return true.
func (m *Machine) HandleEvent(ev mqtt.Event) bool {
	if ev.IsResult() {
		return true
	}

	m.mu.Lock()
	if m.ended || ev.Conn != m.conn {
		m.mu.Unlock()
		return false
	}

	var changes []transition
	switch ev.Kind {
	case mqtt.EventConnected:
		m.lastErr = nil
		if tr, ok := m.setState(StateConnected); ok {
			changes = append(changes, tr)
		}

	case mqtt.EventConnectionLost:
		if ev.Err != nil {
			m.lastErr = fmt.Errorf("%w: %w", mqtt.ErrConnectionFailed, ev.Err)
		}
		next := StateDisconnected
		if m.cfg.Reconnect.Enabled {
			next = StateReconnecting
		}
		if m.state == StateConnected || m.state == StateReconnecting {
			if tr, ok := m.setState(next); ok {
				changes = append(changes, tr)
			}
		}

	case mqtt.EventConnectFailed:
		m.lastErr = ev.Err
		if m.lastErr == nil {
			m.lastErr = mqtt.ErrConnectionFailed
		}
		if tr, ok := m.setState(StateDisconnected); ok {
			changes = append(changes, tr)
		}
	}

	m.unlockAndFire(changes...)
	return true
}

// Status opens a stream that immediately yields the current status and then
// every change. Close it when no longer needed.
func (m *Machine) Status() *StatusStream {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := newStatusStream(m, m.state.Status())
	if m.ended {
		s.complete()
		return s
	}
	m.observers[s] = struct{}{}
	return s
}

// WaitConnected blocks until the machine is connected.
//
// Returns:
//   - error: nil once connected; the connection error if the current attempt
//     failed; ErrEnded after End; ctx.Err() on cancellation
func (m *Machine) WaitConnected(ctx context.Context) error {
	for {
		m.mu.Lock()
		state, lastErr, ended, changed := m.state, m.lastErr, m.ended, m.changed
		m.mu.Unlock()

		switch {
		case ended:
			return ErrEnded
		case state == StateConnected:
			return nil
		case state == StateDisconnected && lastErr != nil:
			return lastErr
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Config returns the configuration of the latest Connect.
func (m *Machine) Config() config.MQTTConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// LastError returns the most recent connection error, or nil.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// End closes the transport and retires the machine.
//
// The final state is StateDisconnected (observers see one StatusDisconnected
// if the machine was connected), every status stream completes, and later
// calls return ErrEnded. Calling End more than once is a no-op.
//
// Returns:
//   - error: From closing the transport
func (m *Machine) End() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return nil
	}

	var changes []transition
	if tr, ok := m.setState(StateDisconnected); ok {
		changes = append(changes, tr)
	}
	m.ended = true
	m.conn++
	close(m.changed)
	m.changed = make(chan struct{})
	for s := range m.observers {
		s.complete()
	}
	clear(m.observers)
	m.unlockAndFire(changes...)

	m.logger.Info("connection ended")

	return m.transport.Close()
}

// setState switches state and broadcasts the status if it changed.
// Caller must hold mu.
func (m *Machine) setState(to State) (transition, bool) {
	from := m.state
	if from == to {
		return transition{}, false
	}

	m.state = to
	close(m.changed)
	m.changed = make(chan struct{})

	if from.Status() != to.Status() {
		status := to.Status()
		for s := range m.observers {
			s.q.Push(status)
		}
	}
	return transition{from: from, to: to}, true
}

// unlockAndFire releases mu and runs hooks for changes, in order.
func (m *Machine) unlockAndFire(changes ...transition) {
	if len(changes) == 0 {
		m.mu.Unlock()
		return
	}

	m.hookMu.Lock()
	m.mu.Unlock()
	defer m.hookMu.Unlock()

	for _, tr := range changes {
		m.logger.Debug("connection state changed", "from", tr.from.String(), "to", tr.to.String())
		for _, hook := range m.hooks {
			hook(tr.from, tr.to)
		}
	}
}

func (m *Machine) removeObserver(s *StatusStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observers, s)
}
