package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/wifisteer/internal/metrics"
)

// Handle is one duplex dashboard channel as seen by the broadcaster.
type Handle interface {
	ID() uuid.UUID
	Send(ctx context.Context, data []byte) error
	Close(reason string)
}

// Registry tracks the currently open dashboard connections.
type Registry struct {
	mu      sync.RWMutex
	handles map[uuid.UUID]Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[uuid.UUID]Handle)}
}

// Add makes h a broadcast target. Returns false if a handle with the same ID is already present.
func (r *Registry) Add(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[h.ID()]; exists {
		return false
	}
	r.handles[h.ID()] = h
	metrics.DashboardConnectionsCurrent.Set(float64(len(r.handles)))
	slog.Debug("Dashboard registered", "conn_id", h.ID().String(), "total_clients", len(r.handles))
	return true
}

// Remove deletes the handle with id. It is idempotent: only the call that
// actually removed the handle returns true.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[id]; !exists {
		return false
	}
	delete(r.handles, id)
	metrics.DashboardConnectionsCurrent.Set(float64(len(r.handles)))
	slog.Debug("Dashboard unregistered", "conn_id", id.String(), "remaining_clients", len(r.handles))
	return true
}

// Snapshot returns the current handles. The lock is released before the caller iterates.
func (r *Registry) Snapshot() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// CloseAll removes and closes every handle. Used during shutdown.
func (r *Registry) CloseAll(reason string) int {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[uuid.UUID]Handle)
	metrics.DashboardConnectionsCurrent.Set(0)
	r.mu.Unlock()

	for _, h := range handles {
		h.Close(reason)
	}
	return len(handles)
}
