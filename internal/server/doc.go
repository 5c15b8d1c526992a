// Package server exposes the relay's HTTP surface: the dashboard WebSocket endpoint,
// health probes, Prometheus metrics and build information.
package server
