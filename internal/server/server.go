package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/wifisteer/internal/broadcast"
	"github.com/pscheid92/wifisteer/internal/config"
	"github.com/pscheid92/wifisteer/internal/intake"
)

// messageHandler consumes one inbound dashboard frame.
type messageHandler interface {
	HandleMessage(ctx context.Context, raw []byte) intake.Result
}

type Server struct {
	echo *echo.Echo
	port string

	registry *broadcast.Registry
	intake   messageHandler
	limits   *ConnectionLimits
	upgrader websocket.Upgrader

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Relay, registry *broadcast.Registry, intake messageHandler, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	limits := NewConnectionLimits(LimitsConfig{
		MaxConnections: cfg.MaxWebSocketConnections,
		MaxPerIP:       cfg.MaxConnectionsPerIP,
		RatePerIP:      cfg.ConnectionRatePerIP,
		BurstPerIP:     cfg.ConnectionBurstPerIP,
	}, clock)

	srv := &Server{
		echo:     e,
		port:     cfg.Port,
		registry: registry,
		intake:   intake,
		limits:   limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.AllowedOrigins),
		},
		healthChecks: healthChecks,
		clock:        clock,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
