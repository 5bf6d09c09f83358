// Package api implements the bridge's local HTTP status API.
//
// This package provides:
//   - Health and metrics endpoints for monitoring
//   - Paginated access to the frame journal
//   - A control endpoint that feeds the same path as MQTT set topics
//   - Middleware stack (request ID, logging, recovery)
//
// # Architecture
//
// The API is a side door into a running bridge. It never talks to the serial
// port directly: control requests are handed to the relay exactly as if they
// had arrived on <prefix>/<addr>/set/<leaf>, so they are echoed to MQTT too.
//
// # Graceful Degradation
//
// The journal endpoint returns 503 when the journal is disabled. Health and
// metrics work whenever the server runs.
package api
