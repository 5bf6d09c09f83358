package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/mqtt"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Process       *asb.ProcessStats `json:"process,omitempty"`
	MQTT          MQTTMetrics       `json:"mqtt"`
	Serial        asb.SerialStats   `json:"serial"`
	Relay         asb.RelayStats    `json:"relay"`
	Database      *DatabaseMetrics  `json:"database,omitempty"`
	Telemetry     *influxdb.Stats   `json:"telemetry,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics. Client is set when the
// server was given the broker client.
type MQTTMetrics struct {
	Connected bool        `json:"connected"`
	Client    *mqtt.Stats `json:"client,omitempty"`
}

// DatabaseMetrics contains journal connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := s.status.Status()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT:   MQTTMetrics{Connected: status.MQTTConnected},
		Serial: status.Serial,
		Relay:  status.Relay,
	}

	if ps, err := s.processStats(); err == nil {
		metrics.Process = &ps
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	if s.broker != nil {
		bs := s.broker.Stats()
		metrics.MQTT.Client = &bs
	}

	if s.telemetry != nil {
		ts := s.telemetry.Stats()
		metrics.Telemetry = &ts
	}

	writeJSON(w, http.StatusOK, metrics)
}
