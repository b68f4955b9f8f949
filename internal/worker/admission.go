// Package worker holds the local-resource side of the worker process:
// admission control, the browser cookie store, and the artifact
// janitor.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/semaphore"

	"github.com/brokerwiz/orchestrator/internal/adapter/observability"
	"github.com/brokerwiz/orchestrator/internal/domain"
)

const cpuSampleWindow = 100 * time.Millisecond

// Controller admits jobs against a fixed slot count and live CPU and
// memory thresholds. A rejected job is left unacked upstream so the
// broker redelivers it once pressure drops.
type Controller struct {
	slots    *semaphore.Weighted
	capacity int
	maxCPU   float64
	maxMem   float64
	log      *slog.Logger

	mu     sync.Mutex
	active map[string]domain.Vendor

	// Samplers are fields so tests can inject fixed readings.
	cpuPercent func(ctx context.Context) (float64, error)
	memory     func(ctx context.Context) (usedPercent, availableMB float64, err error)
}

// NewController builds an admission controller with maxConcurrent
// slots and the given CPU/memory percentage ceilings.
func NewController(maxConcurrent int, maxCPU, maxMem float64, log *slog.Logger) *Controller {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Controller{
		slots:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity:   maxConcurrent,
		maxCPU:     maxCPU,
		maxMem:     maxMem,
		log:        log.With(slog.String("component", "admission")),
		active:     make(map[string]domain.Vendor),
		cpuPercent: sampleCPU,
		memory:     sampleMemory,
	}
}

func sampleCPU(ctx context.Context) (float64, error) {
	vals, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("no cpu sample")
	}
	return vals[0], nil
}

func sampleMemory(ctx context.Context) (float64, float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.UsedPercent, float64(vm.Available) / (1 << 20), nil
}

// Acquire takes a slot if one is free and the host is under the CPU
// and memory ceilings. On success the returned release must be called
// when the job finishes. On rejection the error wraps
// domain.ErrResourceUnavailable.
func (c *Controller) Acquire(ctx context.Context, vendor domain.Vendor, jobID string) (func(), error) {
	if !c.slots.TryAcquire(1) {
		observability.AdmissionRejectedTotal.WithLabelValues("slots").Inc()
		return nil, fmt.Errorf("all %d slots busy: %w", c.capacity, domain.ErrResourceUnavailable)
	}

	if reason, err := c.overLimit(ctx); err != nil {
		c.slots.Release(1)
		observability.AdmissionRejectedTotal.WithLabelValues(reason).Inc()
		return nil, err
	}

	c.mu.Lock()
	c.active[jobID] = vendor
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.active, jobID)
		c.mu.Unlock()
		c.slots.Release(1)
	}
	return release, nil
}

// overLimit samples CPU then memory. Sampler failures admit the job:
// shedding load on a broken probe would starve the queue.
func (c *Controller) overLimit(ctx context.Context) (string, error) {
	cpuPct, err := c.cpuPercent(ctx)
	if err != nil {
		c.log.Warn("cpu sample failed, admitting", slog.Any("error", err))
	} else if cpuPct > c.maxCPU {
		return "cpu", fmt.Errorf("cpu at %.1f%% exceeds %.1f%%: %w", cpuPct, c.maxCPU, domain.ErrResourceUnavailable)
	}

	memPct, _, err := c.memory(ctx)
	if err != nil {
		c.log.Warn("memory sample failed, admitting", slog.Any("error", err))
	} else if memPct > c.maxMem {
		return "memory", fmt.Errorf("memory at %.1f%% exceeds %.1f%%: %w", memPct, c.maxMem, domain.ErrResourceUnavailable)
	}
	return "", nil
}

// AdmissionStats is a point-in-time view of slot usage and host
// pressure, including which jobs currently hold a slot.
type AdmissionStats struct {
	Active            int                      `json:"active"`
	Available         int                      `json:"available"`
	MaxConcurrent     int                      `json:"max_concurrent"`
	CPUPercent        float64                  `json:"cpu_percent"`
	MemoryUsedPercent float64                  `json:"memory_used_percent"`
	MemoryAvailableMB float64                  `json:"memory_available_mb"`
	Jobs              map[string]domain.Vendor `json:"jobs"`
}

// Stats reports slot usage and a host resource snapshot.
func (c *Controller) Stats(ctx context.Context) AdmissionStats {
	c.mu.Lock()
	jobs := make(map[string]domain.Vendor, len(c.active))
	for id, v := range c.active {
		jobs[id] = v
	}
	c.mu.Unlock()

	out := AdmissionStats{
		Active:        len(jobs),
		Available:     c.capacity - len(jobs),
		MaxConcurrent: c.capacity,
		Jobs:          jobs,
	}
	if pct, err := c.cpuPercent(ctx); err == nil {
		out.CPUPercent = pct
	}
	if usedPct, availMB, err := c.memory(ctx); err == nil {
		out.MemoryUsedPercent = usedPct
		out.MemoryAvailableMB = availMB
	}
	return out
}

// StatsHandler serves the admission snapshot as JSON, for the worker's
// operational endpoint.
func (c *Controller) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(c.Stats(r.Context())); err != nil {
			c.log.Warn("admission stats encode failed", slog.Any("error", err))
		}
	})
}
