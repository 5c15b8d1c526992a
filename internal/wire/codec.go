package wire

import (
	"fmt"
	"math"

	"github.com/hypebeast/go-osc/osc"
	"github.com/pscheid92/wifisteer/internal/domain"
)

// Encode serializes env as a single OSC message.
func Encode(env domain.Envelope) ([]byte, error) {
	msg := osc.NewMessage(env.Topic)
	for i, arg := range env.Args {
		v, err := normalize(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, env.Topic, err)
		}
		msg.Append(v)
	}

	data, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", env.Topic, err)
	}
	return data, nil
}

// Decode parses one datagram. A bundle yields its messages in order, nested bundles included.
func Decode(data []byte) ([]domain.Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty datagram", domain.ErrMalformedPacket)
	}

	packet, err := osc.ParsePacket(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPacket, err)
	}

	var envelopes []domain.Envelope
	if err := collect(packet, &envelopes); err != nil {
		return nil, err
	}
	return envelopes, nil
}

func collect(packet osc.Packet, out *[]domain.Envelope) error {
	switch p := packet.(type) {
	case *osc.Message:
		env, err := fromMessage(p)
		if err != nil {
			return err
		}
		*out = append(*out, env)
	case *osc.Bundle:
		for _, m := range p.Messages {
			if err := collect(m, out); err != nil {
				return err
			}
		}
		for _, b := range p.Bundles {
			if err := collect(b, out); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unexpected packet type %T", domain.ErrMalformedPacket, packet)
	}
	return nil
}

func fromMessage(m *osc.Message) (domain.Envelope, error) {
	if m.Address == "" || m.Address[0] != '/' {
		return domain.Envelope{}, fmt.Errorf("%w: invalid address %q", domain.ErrMalformedPacket, m.Address)
	}
	for i, arg := range m.Arguments {
		switch arg.(type) {
		case string, bool, int32, int64, float32, float64:
		default:
			return domain.Envelope{}, fmt.Errorf("%w: argument %d of %s is %T", domain.ErrUnsupportedArgument, i, m.Address, arg)
		}
	}
	return domain.NewEnvelope(m.Address, m.Arguments...), nil
}

// normalize maps Go primitives onto the argument types OSC can carry.
func normalize(arg any) (any, error) {
	switch v := arg.(type) {
	case string, bool, int32, int64, float32, float64:
		return v, nil
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return int32(v), nil
		}
		return int64(v), nil
	case uint8:
		return int32(v), nil
	case uint16:
		return int32(v), nil
	case uint32:
		return int64(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnsupportedArgument, arg)
	}
}
