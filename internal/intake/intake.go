// Package intake recognizes steering commands sent by dashboards and forwards them over UDP.
package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pscheid92/wifisteer/internal/domain"
	"github.com/pscheid92/wifisteer/internal/logging"
	"github.com/pscheid92/wifisteer/internal/metrics"
)

// Result describes what happened to one dashboard message.
type Result string

const (
	ResultForwarded  Result = "forwarded"
	ResultMalformed  Result = "malformed"
	ResultIgnored    Result = "ignored"
	ResultInvalid    Result = "invalid"
	ResultSendFailed Result = "send_failed"
)

// Intake forwards nudge commands to the steering engine's listener.
// Only the "nudge" command type is recognized; other messages are dropped.
type Intake struct {
	sender domain.EnvelopeSender
}

func New(sender domain.EnvelopeSender) *Intake {
	return &Intake{sender: sender}
}

// HandleMessage processes one raw dashboard message. It never fails the connection.
func (in *Intake) HandleMessage(ctx context.Context, raw []byte) Result {
	result := in.handle(ctx, raw)
	metrics.IntakeMessagesTotal.WithLabelValues(string(result)).Inc()
	return result
}

func (in *Intake) handle(ctx context.Context, raw []byte) Result {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		slog.WarnContext(ctx, "Error processing dashboard message", "error", err, "bytes", len(raw))
		return ResultMalformed
	}

	var cmd domain.SteeringCommand
	if err := json.Unmarshal(raw, &cmd); err != nil || cmd.Type != domain.NudgeCommandType {
		slog.InfoContext(ctx, "Received non-nudge message", "message", string(raw))
		return ResultIgnored
	}

	client := strings.TrimSpace(cmd.Client)
	neighbor := strings.TrimSpace(cmd.Neighbor)
	if client == "" || neighbor == "" {
		slog.WarnContext(ctx, "Dropping nudge without client or neighbor", "client", cmd.Client, "neighbor", cmd.Neighbor)
		return ResultInvalid
	}

	ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())
	env := domain.NewEnvelope(domain.NudgeTopic, client, neighbor)
	if err := in.sender.Send(ctx, env); err != nil {
		slog.ErrorContext(ctx, "Failed to forward nudge", "client", client, "neighbor", neighbor, "error", err)
		return ResultSendFailed
	}

	slog.InfoContext(ctx, "Forwarded nudge", "client", client, "neighbor", neighbor)
	return ResultForwarded
}
