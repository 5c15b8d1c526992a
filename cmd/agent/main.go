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
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pscheid92/wifisteer/internal/config"
	"github.com/pscheid92/wifisteer/internal/logging"
	"github.com/pscheid92/wifisteer/internal/steering"
	"github.com/pscheid92/wifisteer/internal/telemetry"
	"github.com/pscheid92/wifisteer/internal/version"
	"github.com/pscheid92/wifisteer/internal/wifi"
	"github.com/pscheid92/wifisteer/internal/wire"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const metricsShutdownTimeout = 5 * time.Second

func setupConfig() *config.Agent {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (overrides environment)")
	pflag.Parse()

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func sourceName(cfg *config.Agent) string {
	if cfg.Hostname != "" {
		return cfg.Hostname
	}
	hostname, err := os.Hostname()
	if err != nil {
		slog.Warn("Failed to read hostname", "error", err)
		return "unknown"
	}
	return hostname
}

func setupTransport(cfg *config.Agent) (net.PacketConn, *wire.Sender) {
	sender, err := wire.NewSender(cfg.TargetAddr(), true)
	if err != nil {
		slog.Error("Failed to open UDP sender", "target", cfg.TargetAddr(), "error", err)
		os.Exit(1)
	}

	conn, err := wire.Listen(cfg.ListenAddr())
	if err != nil {
		slog.Error("Failed to bind UDP listener", "addr", cfg.ListenAddr(), "error", err)
		os.Exit(1)
	}
	return conn, sender
}

func runMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics listener starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Publish()
	source := sourceName(cfg)
	slog.Info("Agent starting",
		"version", info.Version,
		"source", source,
		"listen", cfg.ListenAddr(),
		"target", cfg.TargetAddr(),
	)

	conn, sender := setupTransport(cfg)
	defer func() { _ = sender.Close() }()

	runner := wifi.NewOSRunner(cfg.CommandTimeout)
	station := wifi.NewStation(runner, wifi.StationConfig{
		SysfsRoot:  cfg.SysfsRoot,
		LeasesFile: cfg.LeasesFile,
	})
	executor := wifi.NewHostapdExecutor(runner)

	engine := steering.NewEngine(station, executor, sender, clock)
	publisher := telemetry.NewPublisher(station, sender, source, cfg.TelemetryInterval, clock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Serve(gctx, conn)
	})

	g.Go(func() error {
		publisher.Run(gctx)
		return nil
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return runMetrics(gctx, cfg.MetricsAddr)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")
		_ = conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Agent stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Agent stopped")
}
