// Package influxdb records aSysBus telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # What Gets Written
//
//   - asysbus_reading: one point per decoded sensor frame (temperature,
//     humidity, pressure, lux, counters), tagged with the source node
//   - asysbus_bridge: periodic snapshots of the relay and queue counters
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading(0x0122, "temperature", "temperature", "°C", 21.5, time.Now())
//
// # Error Handling
//
// Write errors arrive asynchronously and are delivered to the callback set
// with SetOnError. Connection and health check errors are returned directly.
// Connect returns ErrDisabled when the integration is switched off.
package influxdb
