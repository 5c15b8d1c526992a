package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wifisteer/internal/metrics"
)

const defaultSendTimeout = 5 * time.Second

// Result summarizes one broadcast generation.
type Result struct {
	Delivered int
	Failed    int
}

// Broadcaster fans a message out to every handle in a Registry.
type Broadcaster struct {
	registry    *Registry
	clock       clockwork.Clock
	sendTimeout time.Duration
}

// NewBroadcaster creates a broadcaster over registry.
// sendTimeout bounds each per-connection send; zero selects the default.
func NewBroadcaster(registry *Registry, clock clockwork.Clock, sendTimeout time.Duration) *Broadcaster {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Broadcaster{
		registry:    registry,
		clock:       clock,
		sendTimeout: sendTimeout,
	}
}

// Broadcast sends data to every handle in a registry snapshot, one goroutine per
// handle, and returns once all sends have settled. Failed handles are evicted.
func (b *Broadcaster) Broadcast(ctx context.Context, data []byte) Result {
	handles := b.registry.Snapshot()
	if len(handles) == 0 {
		return Result{}
	}

	start := b.clock.Now()
	defer func() {
		metrics.BroadcastDuration.Observe(b.clock.Since(start).Seconds())
	}()

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
		failed    atomic.Int64
	)
	for _, h := range handles {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
			defer cancel()

			if err := h.Send(sendCtx, data); err != nil {
				failed.Add(1)
				b.evict(ctx, h, err)
				return
			}
			delivered.Add(1)
		}(h)
	}
	wg.Wait()

	result := Result{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	metrics.BroadcastDeliveriesTotal.WithLabelValues("ok").Add(float64(result.Delivered))
	metrics.BroadcastDeliveriesTotal.WithLabelValues("failed").Add(float64(result.Failed))
	return result
}

func (b *Broadcaster) evict(ctx context.Context, h Handle, err error) {
	if !b.registry.Remove(h.ID()) {
		return
	}
	slog.WarnContext(ctx, "Disconnecting dashboard after failed send", "conn_id", h.ID().String(), "error", err)
	h.Close("send failed")
}

// Stop closes every registered connection with a normal close frame.
func (b *Broadcaster) Stop() {
	closed := b.registry.CloseAll("Server shutting down")
	slog.Info("Broadcaster shutdown complete", "disconnected_clients", closed)
}
