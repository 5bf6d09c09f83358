package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	// MeasurementReading holds decoded sensor values reported by bus nodes.
	MeasurementReading = "asysbus_reading"

	// MeasurementBridge holds the bridge's own relay and queue counters.
	MeasurementBridge = "asysbus_bridge"
)

// NodeTag formats a bus address the way topics do: four lowercase hex digits.
func NodeTag(node uint16) string {
	return fmt.Sprintf("%04x", node)
}

// NewReadingPoint builds the point WriteReading sends.
//
// Tags are node (source address), command (opcode name) and unit; the
// measurement name from the interpreter goes into the "name" tag so that
// every sensor type lands in one measurement.
func NewReadingPoint(node uint16, command, name, unit string, value float64, at time.Time) *write.Point {
	tags := map[string]string{
		"node":    NodeTag(node),
		"command": command,
		"name":    name,
	}
	if unit != "" {
		tags["unit"] = unit
	}

	return write.NewPoint(
		MeasurementReading,
		tags,
		map[string]interface{}{
			"value": value,
		},
		at,
	)
}

// WriteReading records one decoded sensor value.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteReading(0x0122, "temperature", "temperature", "°C", 21.5, time.Now())
func (c *Client) WriteReading(node uint16, command, name, unit string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.write(NewReadingPoint(node, command, name, unit, value, at))
}

// WriteBridgeStats records a snapshot of bridge counters as integer fields
// of a single point tagged with the bridge address.
func (c *Client) WriteBridgeStats(bridgeID uint16, counters map[string]uint64, at time.Time) {
	if !c.IsConnected() || len(counters) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(counters))
	for name, v := range counters {
		fields[name] = v
	}

	c.write(write.NewPoint(
		MeasurementBridge,
		map[string]string{"bridge": NodeTag(bridgeID)},
		fields,
		at,
	))
}

func (c *Client) write(p *write.Point) {
	c.points.Add(1)
	c.writeAPI.WritePoint(p)
}
