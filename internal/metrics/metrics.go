package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay Metrics
var (
	// RelayDatagramsTotal tracks inbound UDP datagrams by topic kind (telemetry, nudge_response, other, malformed)
	RelayDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_datagrams_total",
			Help: "Total inbound UDP datagrams received by the relay, by topic kind",
		},
		[]string{"kind"},
	)

	// BroadcastDuration tracks how long one broadcast generation takes to settle
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_broadcast_duration_seconds",
			Help:    "Time from broadcast start until every per-connection send has settled",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, 1, 5},
		},
	)

	// BroadcastDeliveriesTotal tracks per-connection deliveries by status (ok, failed)
	BroadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_broadcast_deliveries_total",
			Help: "Total per-connection broadcast deliveries by status",
		},
		[]string{"status"},
	)
)

// Dashboard Connection Metrics
var (
	// DashboardConnectionsCurrent tracks the size of the connection registry
	DashboardConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_connections_current",
			Help: "Current number of registered dashboard WebSocket connections",
		},
	)

	// DashboardConnectionsTotal tracks accepted dashboard connections
	DashboardConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_connections_total",
			Help: "Total dashboard WebSocket connections accepted",
		},
	)

	// DashboardConnectionsRejected tracks rejected upgrades by reason
	DashboardConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_connections_rejected_total",
			Help: "Total dashboard connections rejected by reason",
		},
		[]string{"reason"},
	)

	// WebSocketPingFailures tracks keep-alive pings that could not be written
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed WebSocket ping writes",
		},
	)

	// IntakeMessagesTotal tracks dashboard messages by result (forwarded, malformed, ignored, invalid, send_failed)
	IntakeMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_messages_total",
			Help: "Total inbound dashboard messages by result",
		},
		[]string{"result"},
	)
)

// Steering Metrics
var (
	// SteeringDecisionsTotal tracks steering decisions by outcome
	SteeringDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steering_decisions_total",
			Help: "Total steering decisions by outcome",
		},
		[]string{"outcome"},
	)

	// SteeringDecisionDuration tracks time to decide one steering command, executor call included
	SteeringDecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "steering_decision_duration_seconds",
			Help:    "Steering decision duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// HandoffExecutionsTotal tracks executor invocations by status (ok, error)
	HandoffExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_executions_total",
			Help: "Total handoff executor invocations by status",
		},
		[]string{"status"},
	)
)

// Agent Metrics
var (
	// TelemetryPublishesTotal tracks periodic telemetry publishes by status
	TelemetryPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_publishes_total",
			Help: "Total telemetry reports published by status",
		},
		[]string{"status"},
	)

	// UDPSendTotal tracks outbound datagrams by status
	UDPSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udp_send_total",
			Help: "Total outbound UDP datagrams by status",
		},
		[]string{"status"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)
