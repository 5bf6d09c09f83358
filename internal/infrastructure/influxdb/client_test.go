package influxdb_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local InfluxDB.
// Override the token with INFLUXDB_TEST_TOKEN.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         envOr("INFLUXDB_TEST_TOKEN", "asysbus-dev-token"),
		Org:           "asysbus",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connectOrSkip connects to the local InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		if os.Getenv("RUN_INTEGRATION") != "" {
			t.Fatalf("Connect() error = %v", err)
		}
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() should fail for a cancelled context")
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteTelemetry(t *testing.T) {
	client := connectOrSkip(t)

	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteReading(0x0122, "temperature", "temperature", "°C", 21.5, time.Now())
	client.WriteBridgeStats(0x0123, map[string]uint64{"packets_routed": 10, "queue_drops": 0}, time.Now())
	client.Flush()

	// Give the error channel a moment
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("write error = %v", writeErr)
	}

	stats := client.Stats()
	if stats.Points != 2 {
		t.Errorf("Stats().Points = %d, want 2", stats.Points)
	}
	if stats.WriteErrors != 0 {
		t.Errorf("Stats().WriteErrors = %d, want 0", stats.WriteErrors)
	}
}

func TestWriteBridgeStats_Empty(t *testing.T) {
	client := connectOrSkip(t)

	client.WriteBridgeStats(0x0123, nil, time.Now())
	if got := client.Stats().Points; got != 0 {
		t.Errorf("Stats().Points = %d, want 0 for empty counters", got)
	}
}

func TestNewReadingPoint(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	point := influxdb.NewReadingPoint(0x0fa2, "humidity", "humidity", "%RH", 45.2, at)

	if point.Name() != influxdb.MeasurementReading {
		t.Errorf("Name() = %q, want %q", point.Name(), influxdb.MeasurementReading)
	}
	if !point.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", point.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	want := map[string]string{"node": "0fa2", "command": "humidity", "name": "humidity", "unit": "%RH"}
	for k, v := range want {
		if tags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags[k], v)
		}
	}

	fields := point.FieldList()
	if len(fields) != 1 || fields[0].Key != "value" || fields[0].Value != 45.2 {
		t.Errorf("FieldList() = %+v, want value=45.2", fields)
	}
}

func TestNewReadingPoint_NoUnit(t *testing.T) {
	point := influxdb.NewReadingPoint(1, "ppm", "ppm", "", 7, time.Now())
	for _, tag := range point.TagList() {
		if tag.Key == "unit" {
			t.Errorf("unexpected unit tag %q", tag.Value)
		}
	}
}

func TestNodeTag(t *testing.T) {
	tests := map[uint16]string{0: "0000", 0x123: "0123", 0x7ff: "07ff", 0xffff: "ffff"}
	for in, want := range tests {
		if got := influxdb.NodeTag(in); got != want {
			t.Errorf("NodeTag(%#x) = %q, want %q", in, got, want)
		}
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestClient_NeverConnected(t *testing.T) {
	// Writes on a client that never connected are dropped silently.
	client := &influxdb.Client{}
	client.WriteReading(1, "temperature", "temperature", "°C", 1, time.Now())
	client.WriteBridgeStats(1, map[string]uint64{"x": 1}, time.Now())
	client.Flush()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if got := client.Stats(); got != (influxdb.Stats{}) {
		t.Errorf("Stats() = %+v, want zero", got)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)

	client.WriteReading(0x0001, "temperature", "temperature", "°C", 1.0, time.Now())

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Second close and late writes are no-ops.
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	client.WriteReading(0x0001, "temperature", "temperature", "°C", 2.0, time.Now())
	if got := client.Stats().Points; got != 1 {
		t.Errorf("Stats().Points = %d, want 1", got)
	}
}
