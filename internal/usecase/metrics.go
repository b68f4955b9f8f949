package usecase

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	metricsCacheTTL  = 30 * time.Second
	activityWindow   = 24 * time.Hour
	resourceCPUProbe = 100 * time.Millisecond
)

// ServicesStatus reports which moving parts look alive.
type ServicesStatus struct {
	API             bool `json:"api"`
	Broker          bool `json:"broker"`
	WorkersDetected int  `json:"workers_detected"`
	ChromeProcesses int  `json:"chrome_processes"`
}

// QueueStats mirrors the broker-maintained counters, -1 when unknown.
type QueueStats struct {
	StoredMessages   int64 `json:"stored_messages"`
	ConnectedClients int64 `json:"connected_clients"`
}

// ActivityStats is the parsed 24-hour activity window.
type ActivityStats struct {
	WindowHours int                       `json:"window_hours"`
	Vendors     map[string]VendorActivity `json:"vendors"`
	Totals      VendorActivity            `json:"totals"`
}

// ResourceStats samples host resource usage.
type ResourceStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	DiskPercent   float64 `json:"disk_percent"`
}

// SystemMetrics is the full /metrics JSON document.
type SystemMetrics struct {
	Timestamp string         `json:"timestamp"`
	Services  ServicesStatus `json:"services"`
	Queue     QueueStats     `json:"queue"`
	Activity  ActivityStats  `json:"activity_24h"`
	Resources ResourceStats  `json:"resources"`
	Errors    map[string]int `json:"errors"`
}

// CollectorConfig wires the collector's data sources. The function
// fields default to live gopsutil probes when nil; tests inject fixed
// readings.
type CollectorConfig struct {
	WorkerLogPath string
	// WorkerMarker identifies worker processes by command line.
	WorkerMarker  string
	BrokerStats   func() (storedMessages, connectedClients int64)
	BrokerHealthy func() bool
	Resources     func(ctx context.Context) ResourceStats
	Processes     func(ctx context.Context, marker string) (workers, chrome int)
	Logger        *slog.Logger
}

// Collector assembles the system metrics document from the broker
// stats watcher, the worker activity log, and host probes. Results are
// cached for 30 seconds since process scans and CPU sampling are not
// free.
type Collector struct {
	cfg CollectorConfig

	mu       sync.Mutex
	cached   SystemMetrics
	cachedAt time.Time
}

// NewCollector builds a metrics collector.
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Resources == nil {
		cfg.Resources = sampleResources
	}
	if cfg.Processes == nil {
		cfg.Processes = countProcesses
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkerMarker == "" {
		cfg.WorkerMarker = "orchestrator-worker"
	}
	return &Collector{cfg: cfg}
}

// Collect returns the current metrics document, reusing the cached one
// while it is fresh.
func (c *Collector) Collect(ctx context.Context) SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cachedAt.IsZero() && time.Since(c.cachedAt) < metricsCacheTTL {
		return c.cached
	}
	c.cached = c.collect(ctx)
	c.cachedAt = time.Now()
	return c.cached
}

func (c *Collector) collect(ctx context.Context) SystemMetrics {
	m := SystemMetrics{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Queue:     QueueStats{StoredMessages: -1, ConnectedClients: -1},
		Activity: ActivityStats{
			WindowHours: int(activityWindow.Hours()),
			Vendors:     map[string]VendorActivity{},
		},
		Errors: map[string]int{},
	}

	m.Services.API = true
	if c.cfg.BrokerHealthy != nil {
		m.Services.Broker = c.cfg.BrokerHealthy()
	}
	workers, chrome := c.cfg.Processes(ctx, c.cfg.WorkerMarker)
	m.Services.WorkersDetected = workers
	m.Services.ChromeProcesses = chrome

	if c.cfg.BrokerStats != nil {
		m.Queue.StoredMessages, m.Queue.ConnectedClients = c.cfg.BrokerStats()
	}

	if f, err := os.Open(c.cfg.WorkerLogPath); err == nil {
		report := ParseWorkerLog(f, time.Now().Add(-activityWindow))
		_ = f.Close()
		m.Activity.Vendors = report.Vendors
		m.Activity.Totals = report.Totals
		m.Errors = report.ErrorCounts
	} else if !os.IsNotExist(err) {
		c.cfg.Logger.Warn("worker log unreadable", slog.Any("error", err))
	}

	m.Resources = c.cfg.Resources(ctx)
	return m
}

func sampleResources(ctx context.Context) ResourceStats {
	var out ResourceStats
	if vals, err := cpu.PercentWithContext(ctx, resourceCPUProbe, false); err == nil && len(vals) > 0 {
		out.CPUPercent = vals[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.MemoryPercent = vm.UsedPercent
		out.MemoryUsedMB = float64(vm.Used) / (1 << 20)
		out.MemoryTotalMB = float64(vm.Total) / (1 << 20)
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		out.DiskPercent = du.UsedPercent
	}
	return out
}

// countProcesses scans the process table for worker processes (by the
// command-line marker) and Chrome instances spawned by the bots.
func countProcesses(ctx context.Context, marker string) (workers, chrome int) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, 0
	}
	for _, p := range procs {
		cmd, err := p.CmdlineWithContext(ctx)
		if err != nil || cmd == "" {
			continue
		}
		if strings.Contains(cmd, marker) {
			workers++
		}
		lower := strings.ToLower(cmd)
		if strings.Contains(lower, "chrome") || strings.Contains(lower, "chromium") {
			chrome++
		}
	}
	return workers, chrome
}
