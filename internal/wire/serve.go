package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// maxDatagramSize is the largest UDP payload.
const maxDatagramSize = 65535

// DatagramHandler processes one raw datagram. It runs on the read loop goroutine.
type DatagramHandler func(ctx context.Context, data []byte, from net.Addr)

// Listen binds a UDP listener on addr (e.g. ":9021").
func Listen(addr string) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP listener on %s: %w", addr, err)
	}
	return conn, nil
}

// Serve reads datagrams from conn until ctx is cancelled or the socket fails.
// Returns nil on cancellation.
func Serve(ctx context.Context, conn net.PacketConn, handle DatagramHandler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("UDP read failed: %w", err)
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		handle(ctx, data, from)
	}
}
