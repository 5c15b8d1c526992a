package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		RelayDatagramsTotal,
		BroadcastDuration,
		BroadcastDeliveriesTotal,

		DashboardConnectionsCurrent,
		DashboardConnectionsTotal,
		DashboardConnectionsRejected,
		WebSocketPingFailures,
		IntakeMessagesTotal,

		SteeringDecisionsTotal,
		SteeringDecisionDuration,
		HandoffExecutionsTotal,

		TelemetryPublishesTotal,
		UDPSendTotal,
		CircuitBreakerStateChanges,
		CircuitBreakerState,
		BuildInfo,
	}

	for _, metric := range metrics {
		desc := make(chan *prometheus.Desc, 1)
		metric.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterMetrics(t *testing.T) {
	tests := []struct {
		name    string
		metric  *prometheus.CounterVec
		labels  prometheus.Labels
		incBy   int
		wantVal float64
	}{
		{
			name:    "relay datagrams",
			metric:  RelayDatagramsTotal,
			labels:  prometheus.Labels{"kind": "telemetry"},
			incBy:   5,
			wantVal: 5,
		},
		{
			name:    "steering decisions",
			metric:  SteeringDecisionsTotal,
			labels:  prometheus.Labels{"outcome": "already_here"},
			incBy:   2,
			wantVal: 2,
		},
		{
			name:    "intake messages",
			metric:  IntakeMessagesTotal,
			labels:  prometheus.Labels{"result": "forwarded"},
			incBy:   3,
			wantVal: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metric.Reset()

			for n := 0; n < tt.incBy; n++ {
				tt.metric.With(tt.labels).Inc()
			}

			assert.Equal(t, tt.wantVal, testutil.ToFloat64(tt.metric.With(tt.labels)))
		})
	}
}

func TestGaugeMetrics(t *testing.T) {
	DashboardConnectionsCurrent.Set(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(DashboardConnectionsCurrent))

	CircuitBreakerState.Reset()
	CircuitBreakerState.WithLabelValues("wifi_report").Set(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("wifi_report")))
}

func TestHistogramMetrics(t *testing.T) {
	for _, obs := range []float64{0.001, 0.01, 0.1} {
		BroadcastDuration.Observe(obs)
		SteeringDecisionDuration.Observe(obs)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(BroadcastDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(SteeringDecisionDuration))
}
