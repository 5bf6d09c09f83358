package asb

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher implements HealthPublisher for testing.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (p *recordingPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (p *recordingPublisher) snapshot() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

type staticStatus BridgeStatus

func (s staticStatus) Status() BridgeStatus { return BridgeStatus(s) }

func decodeHealth(t *testing.T, payload []byte) HealthMessage {
	t.Helper()
	var msg HealthMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestNewHealthMessage(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)

	tests := []struct {
		name   string
		status BridgeStatus
		want   HealthStatus
		reason string
	}{
		{"healthy", BridgeStatus{MQTTConnected: true, Serial: SerialStats{Connected: true}}, HealthHealthy, ""},
		{"mqtt down", BridgeStatus{Serial: SerialStats{Connected: true}}, HealthDegraded, "MQTT disconnected"},
		{"serial down", BridgeStatus{MQTTConnected: true}, HealthDegraded, "serial port disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewHealthMessage(0x0001, "1.2.3", tt.status, start, now)
			assert.Equal(t, "0x0001", msg.Bridge)
			assert.Equal(t, "1.2.3", msg.Version)
			assert.Equal(t, int64(90), msg.UptimeSeconds)
			assert.Equal(t, tt.want, msg.Status)
			assert.Equal(t, tt.reason, msg.Reason)
		})
	}
}

func TestHealthReporterPublishesAndStops(t *testing.T) {
	pub := &recordingPublisher{}
	tel := &memoryTelemetry{}

	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  0x0001,
		Version:   "test",
		Interval:  10 * time.Millisecond,
		Topic:     "/asysbus/bridge/health",
		QoS:       1,
		Publisher: pub,
		Source: staticStatus{
			MQTTConnected: true,
			Serial:        SerialStats{Port: "fake", Connected: true},
		},
		Telemetry:    tel,
		ProcessStats: func() (ProcessStats, error) { return ProcessStats{CPUPercent: 1.5, MemoryRSS: 4096}, nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool { return len(pub.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	msgs := pub.snapshot()
	first := msgs[0]
	assert.Equal(t, "/asysbus/bridge/health", first.topic)
	assert.Equal(t, byte(1), first.qos)
	assert.True(t, first.retained)

	health := decodeHealth(t, first.payload)
	assert.Equal(t, HealthHealthy, health.Status)
	require.NotNil(t, health.Process)
	assert.Equal(t, uint64(4096), health.Process.MemoryRSS)
	assert.Equal(t, "fake", health.Serial.Port)

	last := decodeHealth(t, msgs[len(msgs)-1].payload)
	assert.Equal(t, HealthStopping, last.Status)

	tel.mu.Lock()
	assert.GreaterOrEqual(t, tel.stats, 2)
	tel.mu.Unlock()
}

func TestHealthReporterWithoutProcessStats(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{
		Source:       staticStatus{},
		ProcessStats: func() (ProcessStats, error) { return ProcessStats{}, errors.New("unsupported") },
	})

	msg := h.Snapshot()
	assert.Nil(t, msg.Process)
	assert.Equal(t, HealthDegraded, msg.Status)
}

func TestHealthReporterDefaults(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{})
	assert.Equal(t, DefaultHealthInterval, h.cfg.Interval)
	assert.NotNil(t, h.cfg.Clock)
	assert.NotNil(t, h.cfg.ProcessStats)
}

func TestReadProcessStats(t *testing.T) {
	stats, err := ReadProcessStats()
	if err != nil {
		t.Skipf("process stats unavailable: %v", err)
	}
	assert.Positive(t, stats.MemoryRSS)
}
