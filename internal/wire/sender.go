package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/pscheid92/wifisteer/internal/domain"
	"github.com/pscheid92/wifisteer/internal/metrics"
)

// Sender writes envelopes to a fixed UDP target over one shared socket.
type Sender struct {
	conn   *net.UDPConn
	target *net.UDPAddr
}

// NewSender opens an unconnected IPv4 UDP socket aimed at target ("host:port").
// broadcast enables SO_BROADCAST so target may be a subnet broadcast address.
func NewSender(target string, broadcast bool) (*Sender, error) {
	addr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target %q: %w", target, err)
	}

	lc := net.ListenConfig{}
	if broadcast {
		lc.Control = enableBroadcast
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket: %w", err)
	}

	return &Sender{conn: pc.(*net.UDPConn), target: addr}, nil
}

// Send encodes env and writes it as one datagram. Safe for concurrent use.
func (s *Sender) Send(ctx context.Context, env domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(env)
	if err != nil {
		metrics.UDPSendTotal.WithLabelValues("encode_error").Inc()
		return err
	}

	if _, err := s.conn.WriteToUDP(data, s.target); err != nil {
		metrics.UDPSendTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to send %s to %s: %w", env.Topic, s.target, err)
	}

	metrics.UDPSendTotal.WithLabelValues("ok").Inc()
	slog.DebugContext(ctx, "Datagram sent", "topic", env.Topic, "target", s.target.String(), "bytes", len(data))
	return nil
}

// Target returns the destination address.
func (s *Sender) Target() string {
	return s.target.String()
}

func (s *Sender) Close() error {
	return s.conn.Close()
}
