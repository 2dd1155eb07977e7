package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqttrx/internal/connection"
	"github.com/nerrad567/mqttrx/internal/infrastructure/config"
	"github.com/nerrad567/mqttrx/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqttrx/internal/pubsub"
)

var _ pubsub.Recorder = (*influxdb.Client)(nil)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "mqttrx-dev-token",
		Org:           "mqttrx",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1, // 1 second for faster test feedback
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := influxdb.Connect(testConfig())
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

// fakeInflux answers /ping and collects line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu    sync.Mutex
	lines []string
}

func newFakeInflux(t *testing.T, pingStatus int) *fakeInflux {
	t.Helper()

	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/ping"):
			w.WriteHeader(pingStatus)
		case strings.HasSuffix(r.URL.Path, "/write"):
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

// waitLines polls until n lines have been written.
func (f *fakeInflux) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := append([]string(nil), f.lines...)
		f.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d written lines", n)
	return nil
}

func fakeConfig(url string) config.InfluxDBConfig {
	cfg := testConfig()
	cfg.URL = url
	return cfg
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999" // Non-existent port

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeInflux(t, http.StatusServiceUnavailable)

	_, err := influxdb.Connect(fakeConfig(f.URL))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	cfg := fakeConfig(f.URL)
	cfg.BatchSize = -5    // Negative, should use default
	cfg.FlushInterval = 0 // Should use default

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect() with default batch settings")
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(fakeConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close()
	if err := client.HealthCheck(ctx); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(fakeConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

// =============================================================================
// Recorder Tests
// =============================================================================

func TestRecorder_WritesPoints(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(fakeConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.RecordStatus(connection.StatusConnected)
	client.RecordDelivery("moph", 2)
	client.RecordPublish("moph", 13, nil)
	client.RecordPublish("moph", 0, errors.New("boom"))
	client.Flush()

	lines := f.waitLines(t, 4)

	tests := []struct {
		measurement string
		tag         string
		want        []string
	}{
		{influxdb.MeasurementStatus, "status=CONNECTED", []string{"connected=1i", "service=mqttrx"}},
		{influxdb.MeasurementDelivery, "topic=moph", []string{"subscribers=2i"}},
		{influxdb.MeasurementPublish, "outcome=ok", []string{"bytes=13i"}},
		{influxdb.MeasurementPublish, "outcome=error", []string{"bytes=0i", `error="boom"`}},
	}

	for _, tt := range tests {
		var line string
		for _, l := range lines {
			if strings.HasPrefix(l, tt.measurement+",") && strings.Contains(l, tt.tag) {
				line = l
				break
			}
		}
		if line == "" {
			t.Errorf("no %s line with %s in %q", tt.measurement, tt.tag, lines)
			continue
		}
		for _, w := range tt.want {
			if !strings.Contains(line, w) {
				t.Errorf("%s line %q missing %q", tt.measurement, line, w)
			}
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
}

func TestWritePointWithTime(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(fakeConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	timestamp := time.Unix(1700000000, 0)
	client.WritePointWithTime(
		"custom_measurement",
		map[string]string{"source": "test-with-time"},
		map[string]interface{}{"value": 88.8},
		timestamp,
	)
	client.Flush()

	lines := f.waitLines(t, 1)
	if !strings.HasSuffix(lines[0], " 1700000000000000000") {
		t.Errorf("line = %q, want nanosecond timestamp 1700000000000000000", lines[0])
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestClose(t *testing.T) {
	f := newFakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(fakeConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Written before close, flushed by Close.
	client.RecordDelivery("close-test", 1)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes after Close are dropped.
	client.RecordDelivery("after-close", 1)
	client.Flush()

	lines := f.waitLines(t, 1)
	for _, l := range lines {
		if strings.Contains(l, "after-close") {
			t.Errorf("point written after Close(): %q", l)
		}
	}
}
