package usecase

import (
	"context"
	"sync"
	"time"
)

// HealthStatus is the overall verdict reported at /health.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
)

const (
	healthyTTL  = 30 * time.Second
	degradedTTL = 5 * time.Second
	pingTimeout = 3 * time.Second
)

// Pinger probes the broker session. Connected is the cheap TCP-level
// view; Ping proves the session can still move a packet end to end.
type Pinger interface {
	Connected() bool
	Ping(ctx context.Context) error
}

// BrokerHealth is the broker section of a health report. IsAlive is
// ternary: nil means no ping was attempted because the session is
// down, so liveness is unknown rather than false.
type BrokerHealth struct {
	Connected bool   `json:"connected"`
	IsAlive   *bool  `json:"is_alive"`
	Error     string `json:"error,omitempty"`
}

// HealthReport is the full /health document.
type HealthReport struct {
	Status    HealthStatus `json:"status"`
	Broker    BrokerHealth `json:"broker"`
	Timestamp string       `json:"timestamp"`
}

// HealthCache probes the broker on demand and caches the verdict:
// healthy results hold for 30 seconds, anything worse only for 5, so
// a recovering broker is noticed quickly. Expiry uses the monotonic
// clock and is immune to wall-clock jumps.
type HealthCache struct {
	pinger Pinger

	mu       sync.Mutex
	cached   HealthReport
	cachedAt time.Time
}

// NewHealthCache wraps a pinger in the caching layer.
func NewHealthCache(p Pinger) *HealthCache {
	return &HealthCache{pinger: p}
}

// Check returns the cached report while fresh, probing otherwise.
func (h *HealthCache) Check(ctx context.Context) HealthReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	ttl := degradedTTL
	if h.cached.Status == StatusHealthy {
		ttl = healthyTTL
	}
	if !h.cachedAt.IsZero() && time.Since(h.cachedAt) < ttl {
		return h.cached
	}

	h.cached = h.probe(ctx)
	h.cachedAt = time.Now()
	return h.cached
}

func (h *HealthCache) probe(ctx context.Context) HealthReport {
	report := HealthReport{Timestamp: time.Now().UTC().Format(time.RFC3339)}

	// Down session: degraded with liveness unknown (IsAlive stays nil),
	// no ping attempted.
	if !h.pinger.Connected() {
		report.Status = StatusDegraded
		report.Broker = BrokerHealth{Connected: false, Error: "broker session down"}
		return report
	}

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	alive := h.pinger.Ping(pctx) == nil

	report.Broker = BrokerHealth{Connected: true, IsAlive: &alive}
	if alive {
		report.Status = StatusHealthy
	} else {
		report.Status = StatusDegraded
		report.Broker.Error = "heartbeat publish timed out"
	}
	return report
}

// Invalidate drops the cached report so the next Check probes again.
func (h *HealthCache) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cachedAt = time.Time{}
}
