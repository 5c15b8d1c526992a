// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (envelope.go, steering.go, telemetry.go, errors.go)
// with shared types and cross-cutting interfaces. No transport code - just contracts.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
