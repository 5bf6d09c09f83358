package asb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID uint16
	Version  string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	// Topic is the full health topic.
	Topic string
	QoS   byte

	Publisher HealthPublisher
	Source    StatusSource

	// Telemetry, when set, also receives the relay counters on every tick.
	Telemetry TelemetryWriter

	Logger Logger
	Clock  func() time.Time

	// ProcessStats samples process resources. Defaults to ReadProcessStats.
	ProcessStats func() (ProcessStats, error)
}

// HealthReporter publishes bridge health at a fixed interval.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time
}

// NewHealthReporter creates a new health reporter. Call Run to start it.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ProcessStats == nil {
		cfg.ProcessStats = ReadProcessStats
	}
	return &HealthReporter{cfg: cfg, startTime: cfg.Clock()}
}

// Run publishes immediately and then on every tick until ctx is done.
func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	h.tick()

	for {
		select {
		case <-ctx.Done():
			h.publishStopping()
			return ctx.Err()
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *HealthReporter) tick() {
	msg := h.Snapshot()

	if h.cfg.Telemetry != nil {
		h.cfg.Telemetry.WriteBridgeStats(h.cfg.BridgeID, msg.Relay.Counters(), msg.Timestamp)
	}

	if err := h.publish(msg); err != nil && h.cfg.Logger != nil {
		h.cfg.Logger.Error("failed to publish health", "topic", h.cfg.Topic, "error", err)
	}
}

// Snapshot builds the current health message.
func (h *HealthReporter) Snapshot() HealthMessage {
	var status BridgeStatus
	if h.cfg.Source != nil {
		status = h.cfg.Source.Status()
	}

	msg := NewHealthMessage(h.cfg.BridgeID, h.cfg.Version, status, h.startTime, h.cfg.Clock())

	if ps, err := h.cfg.ProcessStats(); err == nil {
		msg.Process = &ps
	} else if h.cfg.Logger != nil {
		h.cfg.Logger.Debug("process stats unavailable", "error", err)
	}

	return msg
}

// publishStopping is best-effort; the broker may already be gone.
func (h *HealthReporter) publishStopping() {
	msg := h.Snapshot()
	msg.Status = HealthStopping
	msg.Reason = "bridge stopping"
	_ = h.publish(msg) //nolint:errcheck // nothing to do if it fails during shutdown
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.cfg.Publisher == nil || h.cfg.Topic == "" {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal health: %w", err)
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, h.cfg.QoS, true)
}
