// Package telemetry publishes periodic access-point reports over UDP.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wifisteer/internal/domain"
	"github.com/pscheid92/wifisteer/internal/logging"
	"github.com/pscheid92/wifisteer/internal/metrics"
)

const DefaultInterval = time.Second

// Publisher gathers a report from a ReportSource on every tick and sends it as a
// single JSON string argument on the per-source telemetry topic.
type Publisher struct {
	source   domain.ReportSource
	sender   domain.EnvelopeSender
	topic    string
	interval time.Duration
	clock    clockwork.Clock
}

// NewPublisher creates a publisher for sourceName (usually the hostname).
func NewPublisher(source domain.ReportSource, sender domain.EnvelopeSender, sourceName string, interval time.Duration, clock clockwork.Clock) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Publisher{
		source:   source,
		sender:   sender,
		topic:    domain.TelemetryTopic(sourceName),
		interval: interval,
		clock:    clock,
	}
}

// Topic returns the address reports are published on.
func (p *Publisher) Topic() string { return p.topic }

// Run publishes immediately and then on every interval. It blocks until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	slog.Info("Telemetry publisher started", "topic", p.topic, "interval", p.interval)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		tickCtx := logging.WithCorrelationID(ctx, logging.NewCorrelationID())
		if err := p.PublishOnce(tickCtx); err != nil {
			slog.WarnContext(tickCtx, "Telemetry send failed", "topic", p.topic, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// PublishOnce gathers and sends one report. A failed collection is published as an
// empty interface list so dashboards still see the source as alive.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	reports, err := p.source.Report(ctx)
	if err != nil {
		metrics.TelemetryPublishesTotal.WithLabelValues("collect_error").Inc()
		slog.WarnContext(ctx, "Error reading wifi interfaces", "error", err)
		reports = nil
	}
	if reports == nil {
		reports = []domain.InterfaceReport{}
	}

	data, err := json.Marshal(reports)
	if err != nil {
		metrics.TelemetryPublishesTotal.WithLabelValues("encode_error").Inc()
		return fmt.Errorf("failed to marshal telemetry report: %w", err)
	}

	if err := p.sender.Send(ctx, domain.NewEnvelope(p.topic, string(data))); err != nil {
		metrics.TelemetryPublishesTotal.WithLabelValues("send_error").Inc()
		return err
	}

	metrics.TelemetryPublishesTotal.WithLabelValues("ok").Inc()
	return nil
}
