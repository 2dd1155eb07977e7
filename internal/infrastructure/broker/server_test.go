package broker

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
)

// reserveTCPAddr returns a loopback address that was free a moment ago.
func reserveTCPAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve listen addr: %v", err)
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		t.Fatalf("close reserved listener: %v", err)
	}
	return addr
}

func TestNew_NoListeners(t *testing.T) {
	_, err := New(config.BrokerConfig{})
	if !errors.Is(err, ErrNoListeners) {
		t.Errorf("New() error = %v, want ErrNoListeners", err)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	cfg := config.BrokerConfig{
		TCPAddress:       reserveTCPAddr(t),
		WebSocketAddress: reserveTCPAddr(t),
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, addr := range []string{cfg.TCPAddress, cfg.WebSocketAddress} {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			t.Errorf("dial %s: %v", addr, err)
			continue
		}
		conn.Close()
	}

	if err := srv.Publish("moph", []byte(`{"bar":"foo"}`), false, 0); err != nil {
		t.Errorf("Publish() error = %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDialAddress(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{addr: ":1883", want: "127.0.0.1:1883"},
		{addr: "0.0.0.0:1884", want: "127.0.0.1:1884"},
		{addr: "127.0.0.1:9000", want: "127.0.0.1:9000"},
		{addr: "broker.local:1883", want: "broker.local:1883"},
		{addr: "not-an-address", want: "not-an-address"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := dialAddress(tt.addr); got != tt.want {
				t.Errorf("dialAddress(%q) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

func TestWaitListening_ContextExpires(t *testing.T) {
	addr := reserveTCPAddr(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := waitListening(ctx, addr); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waitListening() error = %v, want DeadlineExceeded", err)
	}
}
