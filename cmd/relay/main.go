package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wifisteer/internal/broadcast"
	"github.com/pscheid92/wifisteer/internal/config"
	"github.com/pscheid92/wifisteer/internal/intake"
	"github.com/pscheid92/wifisteer/internal/logging"
	"github.com/pscheid92/wifisteer/internal/relay"
	"github.com/pscheid92/wifisteer/internal/server"
	"github.com/pscheid92/wifisteer/internal/version"
	"github.com/pscheid92/wifisteer/internal/wire"
	"golang.org/x/sync/errgroup"
)

func setupConfig() *config.Relay {
	cfg, err := config.LoadRelay()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupTransport(cfg *config.Relay) (net.PacketConn, *wire.Sender) {
	conn, err := wire.Listen(cfg.UDPAddr)
	if err != nil {
		slog.Error("Failed to bind UDP listener", "addr", cfg.UDPAddr, "error", err)
		os.Exit(1)
	}

	sender, err := wire.NewSender(cfg.CommandTarget, cfg.CommandBroadcast)
	if err != nil {
		slog.Error("Failed to open command sender", "target", cfg.CommandTarget, "error", err)
		os.Exit(1)
	}
	return conn, sender
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Publish()
	slog.Info("Relay starting",
		"version", info.Version,
		"port", cfg.Port,
		"udp_addr", cfg.UDPAddr,
		"command_target", cfg.CommandTarget,
	)

	conn, sender := setupTransport(cfg)
	defer func() { _ = sender.Close() }()

	registry := broadcast.NewRegistry()
	broadcaster := broadcast.NewBroadcaster(registry, clock, cfg.BroadcastSendTimeout)
	telemetryRelay := relay.New(broadcaster)
	commandIntake := intake.New(sender)

	var listening atomic.Bool
	listening.Store(true)
	checks := []server.HealthCheck{{
		Name: "udp_listener",
		Check: func(context.Context) error {
			if !listening.Load() {
				return errors.New("UDP listener stopped")
			}
			return nil
		},
	}}
	srv := server.NewServer(cfg, registry, commandIntake, checks, clock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer listening.Store(false)
		return telemetryRelay.Serve(gctx, conn)
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		broadcaster.Stop()
		_ = conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Relay stopped")
}
