package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wifisteer/internal/metrics"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 20 * time.Second
	pongDeadline  = 40 * time.Second
)

var errClientClosed = errors.New("client closed")

// Client is a dashboard WebSocket connection.
//
// Data frames are written under writeMu; pings and close frames go through
// WriteControl, which gorilla allows concurrently with other writes.
type Client struct {
	id         uuid.UUID
	connection *websocket.Conn
	clock      clockwork.Clock

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps connection and arms the read deadline that the pong handler extends.
func NewClient(connection *websocket.Conn, clock clockwork.Clock) *Client {
	c := &Client{
		id:         uuid.New(),
		connection: connection,
		clock:      clock,
		done:       make(chan struct{}),
	}
	c.updateReadDeadline()
	connection.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
	return c
}

func (c *Client) ID() uuid.UUID { return c.id }

// RemoteAddr returns the peer address of the underlying connection.
func (c *Client) RemoteAddr() string {
	return c.connection.RemoteAddr().String()
}

// Send writes one text frame. The write deadline is the earlier of ctx's deadline and writeDeadline.
func (c *Client) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := c.clock.Now().Add(writeDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.connection.SetWriteDeadline(deadline)
	return c.connection.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage blocks for the next frame from the dashboard. Any frame counts as activity.
func (c *Client) ReadMessage() (int, []byte, error) {
	messageType, data, err := c.connection.ReadMessage()
	if err == nil {
		c.updateReadDeadline()
	}
	return messageType, data, err
}

// KeepAlive pings the dashboard until the client is closed or a ping fails.
// A dashboard that stops answering trips the read deadline, which ends its read loop.
func (c *Client) KeepAlive() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			deadline := c.clock.Now().Add(writeDeadline)
			if err := c.connection.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				metrics.WebSocketPingFailures.Inc()
				c.Close("ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close sends a close frame with reason and closes the connection. Safe to call more than once.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.connection.WriteControl(websocket.CloseMessage, closeMsg, c.clock.Now().Add(writeDeadline))
		_ = c.connection.Close()
	})
}

func (c *Client) updateReadDeadline() {
	_ = c.connection.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
