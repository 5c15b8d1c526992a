package domain

import (
	"context"
	"strings"
)

// Topics carried over the UDP wire protocol.
const (
	TelemetryTopicPrefix = "/wifi-data/"
	NudgeTopic           = "/nudge"
	NudgeResponseTopic   = "/nudge-response"
)

// Envelope is one protocol message: a hierarchical topic plus positional
// primitive arguments (string, bool, integer or float).
type Envelope struct {
	Topic string
	Args  []any
}

// NewEnvelope copies args so the envelope stays immutable after construction.
func NewEnvelope(topic string, args ...any) Envelope {
	copied := make([]any, len(args))
	copy(copied, args)
	return Envelope{Topic: topic, Args: copied}
}

// TelemetryTopic returns the per-source telemetry address for source.
func TelemetryTopic(source string) string {
	return TelemetryTopicPrefix + source
}

// IsTelemetryTopic reports whether topic carries a telemetry report.
func IsTelemetryTopic(topic string) bool {
	return strings.HasPrefix(topic, TelemetryTopicPrefix) && len(topic) > len(TelemetryTopicPrefix)
}

// DashboardMessage is the JSON wire form of an Envelope on the dashboard channel.
type DashboardMessage struct {
	Address string `json:"address"`
	Args    []any  `json:"args"`
}

// ToDashboardMessage converts an envelope to its dashboard wire form.
// Args is never nil so it always encodes as a JSON array.
func (e Envelope) ToDashboardMessage() DashboardMessage {
	args := e.Args
	if args == nil {
		args = []any{}
	}
	return DashboardMessage{Address: e.Topic, Args: args}
}

// EnvelopeSender pushes envelopes onto the UDP wire.
// Implementations must be safe for concurrent use.
type EnvelopeSender interface {
	Send(ctx context.Context, env Envelope) error
}
