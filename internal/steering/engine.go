package steering

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wifisteer/internal/domain"
	"github.com/pscheid92/wifisteer/internal/logging"
	"github.com/pscheid92/wifisteer/internal/metrics"
	"github.com/pscheid92/wifisteer/internal/wire"
)

// Transition-management parameters sent with every handoff.
const (
	disassocTimer  = 5
	transitionMode = 2
)

// Outcome is the terminal state of one steering decision.
type Outcome string

const (
	OutcomeNotConnected Outcome = "not_connected"
	OutcomeNoInterface  Outcome = "no_interface"
	OutcomeAlreadyHere  Outcome = "already_here"
	OutcomeRequested    Outcome = "requested"
)

// Decision is the result of deciding one command. Message is the human-readable response.
type Decision struct {
	Outcome   Outcome
	Client    string
	Interface string
	Message   string
}

// Engine resolves steering commands against an AssociationSource and hands off through a HandoffExecutor.
type Engine struct {
	source    domain.AssociationSource
	executor  domain.HandoffExecutor
	responder domain.EnvelopeSender
	clock     clockwork.Clock
}

func NewEngine(source domain.AssociationSource, executor domain.HandoffExecutor, responder domain.EnvelopeSender, clock clockwork.Clock) *Engine {
	return &Engine{
		source:    source,
		executor:  executor,
		responder: responder,
		clock:     clock,
	}
}

// Serve receives commands on conn until ctx is cancelled. A command arriving while
// another is being decided waits in the socket buffer.
func (e *Engine) Serve(ctx context.Context, conn net.PacketConn) error {
	slog.Info("Listening for steering commands", "addr", conn.LocalAddr().String())
	return wire.Serve(ctx, conn, e.HandleDatagram)
}

// HandleDatagram decodes one datagram and handles each envelope it carries in order.
func (e *Engine) HandleDatagram(ctx context.Context, data []byte, from net.Addr) {
	envelopes, err := wire.Decode(data)
	if err != nil {
		slog.WarnContext(ctx, "Dropping malformed command datagram", "from", from, "error", err)
		return
	}
	for _, env := range envelopes {
		e.HandleEnvelope(ctx, env)
	}
}

// HandleEnvelope validates a /nudge envelope, decides it and emits the response.
func (e *Engine) HandleEnvelope(ctx context.Context, env domain.Envelope) {
	if env.Topic != domain.NudgeTopic {
		slog.DebugContext(ctx, "Ignoring envelope on unhandled topic", "topic", env.Topic)
		return
	}

	cmd, err := commandFromEnvelope(env)
	if err != nil {
		slog.WarnContext(ctx, "Dropping invalid nudge", "args", env.Args, "error", err)
		return
	}

	ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())
	decision := e.Decide(ctx, cmd)

	response := domain.NewEnvelope(domain.NudgeResponseTopic, decision.Message)
	if err := e.responder.Send(ctx, response); err != nil {
		slog.ErrorContext(ctx, "Failed to send nudge response", "client", cmd.Client, "outcome", decision.Outcome, "error", err)
	}
}

// Decide runs the steering state machine for one command. It never returns an error:
// lookup failures are ordinary outcomes and executor failures are surfaced as text.
func (e *Engine) Decide(ctx context.Context, cmd domain.SteeringCommand) Decision {
	start := e.clock.Now()
	decision := e.decide(ctx, cmd)

	metrics.SteeringDecisionDuration.Observe(e.clock.Since(start).Seconds())
	metrics.SteeringDecisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()
	slog.InfoContext(ctx, "Steering decision",
		"client", decision.Client,
		"interface", decision.Interface,
		"neighbor", cmd.Neighbor,
		"outcome", decision.Outcome,
	)
	return decision
}

func (e *Engine) decide(ctx context.Context, cmd domain.SteeringCommand) Decision {
	mac := cmd.Client

	if !e.isConnected(ctx, mac) {
		return Decision{
			Outcome: OutcomeNotConnected,
			Client:  mac,
			Message: fmt.Sprintf("Nudge ignored: %s is not connected", mac),
		}
	}

	iface, err := e.source.ClientInterface(ctx, mac)
	if err != nil {
		slog.WarnContext(ctx, "Could not resolve client interface", "client", mac, "error", err)
	}
	if iface == "" {
		return Decision{
			Outcome: OutcomeNoInterface,
			Client:  mac,
			Message: fmt.Sprintf("Could not find interface for client %s", mac),
		}
	}

	neighbor := domain.Neighbor(cmd.Neighbor)
	if e.isLocalBSSID(ctx, iface, neighbor) {
		return Decision{
			Outcome:   OutcomeAlreadyHere,
			Client:    mac,
			Interface: iface,
			Message:   fmt.Sprintf("%s is already here", mac),
		}
	}

	output := e.transition(ctx, domain.TransitionRequest{
		Client:           mac,
		Interface:        iface,
		Neighbor:         neighbor,
		DisassocImminent: true,
		DisassocTimer:    disassocTimer,
		Prefer:           true,
		Mode:             transitionMode,
	})
	return Decision{
		Outcome:   OutcomeRequested,
		Client:    mac,
		Interface: iface,
		Message:   fmt.Sprintf("Sent BSS transition request to %s: %s", mac, output),
	}
}

// isConnected treats a failed lookup as an empty association set.
func (e *Engine) isConnected(ctx context.Context, mac string) bool {
	clients, err := e.source.ConnectedClients(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to get connected clients", "error", err)
		return false
	}
	for _, c := range clients {
		if domain.SameMAC(c, mac) {
			return true
		}
	}
	return false
}

// isLocalBSSID reports whether neighbor names iface's own radio. An unknown local
// address never matches, so the handoff is attempted.
func (e *Engine) isLocalBSSID(ctx context.Context, iface string, neighbor domain.Neighbor) bool {
	local, err := e.source.InterfaceAddress(ctx, iface)
	if err != nil || local == "" {
		slog.WarnContext(ctx, "Could not determine BSSID for interface", "interface", iface, "error", err)
		return false
	}
	return domain.SameMAC(local, neighbor.BSSID())
}

// transition invokes the executor and returns its raw output. On failure the output
// is still surfaced; the error text stands in when there is none.
func (e *Engine) transition(ctx context.Context, req domain.TransitionRequest) string {
	output, err := e.executor.Transition(ctx, req)
	output = strings.TrimSpace(output)
	if err != nil {
		metrics.HandoffExecutionsTotal.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "Handoff executor failed", "client", req.Client, "interface", req.Interface, "output", output, "error", err)
		if output == "" {
			output = err.Error()
		}
		return output
	}
	metrics.HandoffExecutionsTotal.WithLabelValues("ok").Inc()
	return output
}

func commandFromEnvelope(env domain.Envelope) (domain.SteeringCommand, error) {
	if len(env.Args) != 2 {
		return domain.SteeringCommand{}, fmt.Errorf("%w: expected 2 arguments, got %d", domain.ErrInvalidCommand, len(env.Args))
	}
	client, ok := env.Args[0].(string)
	if !ok || strings.TrimSpace(client) == "" {
		return domain.SteeringCommand{}, fmt.Errorf("%w: client must be a non-empty string", domain.ErrInvalidCommand)
	}
	raw, ok := env.Args[1].(string)
	if !ok {
		return domain.SteeringCommand{}, fmt.Errorf("%w: neighbor must be a string", domain.ErrInvalidCommand)
	}
	neighbor, err := domain.ParseNeighbor(raw)
	if err != nil {
		return domain.SteeringCommand{}, err
	}
	return domain.SteeringCommand{
		Type:     domain.NudgeCommandType,
		Client:   strings.TrimSpace(client),
		Neighbor: neighbor.String(),
	}, nil
}
