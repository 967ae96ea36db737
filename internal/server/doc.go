// Package server provides the exporter's HTTP surface.
//
//   - GET /metrics: prometheus text exposition for scrapers
//   - GET /api/status: JSON snapshot of every target's last execution
//   - GET /healthz: liveness probe
//
// Everything else is refused with 403. The server supports graceful
// shutdown via context cancellation, with a 5-second timeout for in-flight
// requests.
package server
