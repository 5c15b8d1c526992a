package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"

	"github.com/pscheid92/wifisteer/internal/broadcast"
	"github.com/pscheid92/wifisteer/internal/domain"
	"github.com/pscheid92/wifisteer/internal/metrics"
	"github.com/pscheid92/wifisteer/internal/wire"
)

// Kind classifies a topic for logging and metrics. Every kind is forwarded.
type Kind string

const (
	KindTelemetry     Kind = "telemetry"
	KindNudgeResponse Kind = "nudge_response"
	KindOther         Kind = "other"
)

// Classify maps a topic to its Kind.
func Classify(topic string) Kind {
	switch {
	case domain.IsTelemetryTopic(topic):
		return KindTelemetry
	case topic == domain.NudgeResponseTopic:
		return KindNudgeResponse
	default:
		return KindOther
	}
}

// Fanout delivers one encoded message to every dashboard.
type Fanout interface {
	Broadcast(ctx context.Context, data []byte) broadcast.Result
}

// Relay bridges the UDP wire protocol to the dashboard fan-out.
type Relay struct {
	fanout Fanout
}

func New(fanout Fanout) *Relay {
	return &Relay{fanout: fanout}
}

// Serve runs the UDP read loop on conn until ctx is cancelled.
func (r *Relay) Serve(ctx context.Context, conn net.PacketConn) error {
	slog.Info("Relay listening for datagrams", "addr", conn.LocalAddr().String())
	return wire.Serve(ctx, conn, func(ctx context.Context, data []byte, from net.Addr) {
		r.HandleDatagram(ctx, data, from)
	})
}

// HandleDatagram decodes one datagram and broadcasts every envelope it carries.
// Malformed datagrams are logged and dropped.
func (r *Relay) HandleDatagram(ctx context.Context, data []byte, from net.Addr) {
	envelopes, err := wire.Decode(data)
	if err != nil {
		metrics.RelayDatagramsTotal.WithLabelValues("malformed").Inc()
		slog.WarnContext(ctx, "Dropping malformed datagram", "from", addrString(from), "bytes", len(data), "error", err)
		return
	}

	for _, env := range envelopes {
		r.forward(ctx, env)
	}
}

func (r *Relay) forward(ctx context.Context, env domain.Envelope) {
	kind := Classify(env.Topic)
	metrics.RelayDatagramsTotal.WithLabelValues(string(kind)).Inc()

	data, err := json.Marshal(env.ToDashboardMessage())
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal dashboard message", "topic", env.Topic, "error", err)
		return
	}

	result := r.fanout.Broadcast(ctx, data)

	switch kind {
	case KindNudgeResponse:
		slog.InfoContext(ctx, "Nudge response relayed", "args", env.Args, "delivered", result.Delivered, "failed", result.Failed)
	default:
		slog.DebugContext(ctx, "Envelope relayed", "topic", env.Topic, "kind", kind, "delivered", result.Delivered, "failed", result.Failed)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
