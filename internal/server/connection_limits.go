package server

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const idleLimiterTTL = 10 * time.Minute

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// LimitsConfig sets the admission policy for dashboard connections.
type LimitsConfig struct {
	MaxConnections int
	MaxPerIP       int
	RatePerIP      float64
	BurstPerIP     int
}

// ConnectionLimits admits dashboard connections under a global cap, a per-IP cap
// and a per-IP token bucket for new connection attempts.
type ConnectionLimits struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	cfg     LimitsConfig
	current int
	peers   map[string]*peerState
	sweepAt time.Time
}

type peerState struct {
	active   int
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(cfg LimitsConfig, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		clock:   clock,
		cfg:     cfg,
		peers:   make(map[string]*peerState),
		sweepAt: clock.Now().Add(idleLimiterTTL),
	}
}

// Acquire reserves a slot for ip. Every successful Acquire must be paired with Release.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.sweepAt) {
		l.sweep(now)
		l.sweepAt = now.Add(idleLimiterTTL)
	}

	peer, ok := l.peers[ip]
	if !ok {
		peer = &peerState{limiter: rate.NewLimiter(rate.Limit(l.cfg.RatePerIP), l.cfg.BurstPerIP)}
		l.peers[ip] = peer
	}
	peer.lastSeen = now

	if !peer.limiter.AllowN(now, 1) {
		return false, LimitReasonRate
	}
	if l.current >= l.cfg.MaxConnections {
		return false, LimitReasonGlobal
	}
	if peer.active >= l.cfg.MaxPerIP {
		return false, LimitReasonPerIP
	}

	l.current++
	peer.active++
	return true, ""
}

// Release frees the slot reserved for ip.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	peer, ok := l.peers[ip]
	if !ok || peer.active == 0 {
		return
	}
	peer.active--
	l.current--
	peer.lastSeen = l.clock.Now()
}

// Current returns the number of admitted connections.
func (l *ConnectionLimits) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Count returns the number of admitted connections from ip.
func (l *ConnectionLimits) Count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if peer, ok := l.peers[ip]; ok {
		return peer.active
	}
	return 0
}

// sweep drops idle peers without active connections. Must be called with mu held.
func (l *ConnectionLimits) sweep(now time.Time) {
	cutoff := now.Add(-idleLimiterTTL)
	for ip, peer := range l.peers {
		if peer.active == 0 && peer.lastSeen.Before(cutoff) {
			delete(l.peers, ip)
		}
	}
}
