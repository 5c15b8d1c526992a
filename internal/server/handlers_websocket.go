package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/wifisteer/internal/broadcast"
	"github.com/pscheid92/wifisteer/internal/logging"
	"github.com/pscheid92/wifisteer/internal/metrics"
)

// handleWebSocket admits a dashboard, registers it as a broadcast target and feeds
// its inbound frames to the command intake until the connection ends.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.DashboardConnectionsRejected.WithLabelValues(string(reason)).Inc()
		slog.Warn("Dashboard connection rejected", "ip", ip, "reason", reason)
		return c.String(http.StatusTooManyRequests, "Too many connections")
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.Warn("WebSocket upgrade failed", "ip", ip, "error", err)
		return nil
	}

	client := broadcast.NewClient(conn, s.clock)
	log := logging.WithConn(client.ID().String())

	s.registry.Add(client)
	metrics.DashboardConnectionsTotal.Inc()
	log.Info("Dashboard connected", "remote_addr", client.RemoteAddr(), "dashboards", s.registry.Len())

	go client.KeepAlive()

	ctx := c.Request().Context()
	for {
		messageType, data, err := client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Dashboard read failed", "error", err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.intake.HandleMessage(ctx, data)
	}

	if s.registry.Remove(client.ID()) {
		log.Info("Dashboard disconnected", "dashboards", s.registry.Len())
	}
	client.Close("connection closed")

	return nil
}
