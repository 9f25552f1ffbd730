// Package server provides the optional HTTP status server of fermentbridge.
//
// This package is internal to fermentbridge and handles all HTTP concerns:
//
//   - REST API: JSON endpoint at "/api/status" for the last cycle per device
//   - Server-Sent Events: Live cycle updates at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//   - Liveness: "/healthz"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
