package asb

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates both the broker and the serial port are up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates one side of the bridge is disconnected.
	HealthDegraded HealthStatus = "degraded"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// BridgeStatus is a point-in-time view of the bridge.
type BridgeStatus struct {
	MQTTConnected bool        `json:"mqtt_connected"`
	Serial        SerialStats `json:"serial"`
	Relay         RelayStats  `json:"relay"`
}

// StatusSource provides the current bridge status. *Bridge implements it.
type StatusSource interface {
	Status() BridgeStatus
}

// ProcessStats describes the resource use of the bridge process.
type ProcessStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
}

// ReadProcessStats samples CPU and resident memory of the current process.
func ReadProcessStats() (ProcessStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("inspect process: %w", err)
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("cpu percent: %w", err)
	}

	mem, err := proc.MemoryInfo()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("memory info: %w", err)
	}

	return ProcessStats{CPUPercent: cpuPercent, MemoryRSS: mem.RSS}, nil
}

// HealthMessage is published retained on <prefix>/bridge/health.
type HealthMessage struct {
	// Bridge is the bus address of the bridge, e.g. "0x0001".
	Bridge string `json:"bridge"`

	// Timestamp is when the message was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	Status  HealthStatus `json:"status"`
	Version string       `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	MQTTConnected bool          `json:"mqtt_connected"`
	Serial        SerialStats   `json:"serial"`
	Relay         RelayStats    `json:"relay"`
	Process       *ProcessStats `json:"process,omitempty"`

	// Reason explains a degraded or stopping status.
	Reason string `json:"reason,omitempty"`
}

// NewHealthMessage builds a health message from a status snapshot.
func NewHealthMessage(bridgeID uint16, version string, status BridgeStatus, startTime, now time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        fmt.Sprintf("0x%04x", bridgeID),
		Timestamp:     now.UTC(),
		Status:        HealthHealthy,
		Version:       version,
		UptimeSeconds: int64(now.Sub(startTime).Seconds()),
		MQTTConnected: status.MQTTConnected,
		Serial:        status.Serial,
		Relay:         status.Relay,
	}

	switch {
	case !status.MQTTConnected:
		msg.Status = HealthDegraded
		msg.Reason = "MQTT disconnected"
	case !status.Serial.Connected:
		msg.Status = HealthDegraded
		msg.Reason = "serial port disconnected"
	}

	return msg
}
