package httpserver

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

// InsurerConfig is the per-vendor entry of the insurer config file.
type InsurerConfig struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// InsurerRegistry loads the enable/disable switches for each vendor
// from a JSON file. A missing or unparseable file enables everything:
// the switch exists to turn vendors off, never to silently lose them.
type InsurerRegistry struct {
	path string
	log  *slog.Logger

	mu      sync.RWMutex
	entries map[domain.Vendor]InsurerConfig
}

// NewInsurerRegistry loads the registry from path.
func NewInsurerRegistry(path string, log *slog.Logger) *InsurerRegistry {
	r := &InsurerRegistry{
		path: path,
		log:  log.With(slog.String("component", "insurer_registry")),
	}
	r.Reload()
	return r
}

// Reload re-reads the config file, falling back to all-enabled.
func (r *InsurerRegistry) Reload() {
	entries := r.load()
	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
}

func (r *InsurerRegistry) load() map[domain.Vendor]InsurerConfig {
	defaults := make(map[domain.Vendor]InsurerConfig, len(domain.Vendors()))
	for _, v := range domain.Vendors() {
		defaults[v] = InsurerConfig{Enabled: true, Description: v.Upper()}
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("insurer config unreadable, enabling all", slog.Any("error", err))
		} else {
			r.log.Warn("insurer config missing, enabling all", slog.String("path", r.path))
		}
		return defaults
	}

	var raw map[string]InsurerConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		r.log.Error("insurer config malformed, enabling all", slog.Any("error", err))
		return defaults
	}

	for key, cfg := range raw {
		v, err := domain.ParseVendor(key)
		if err != nil {
			r.log.Warn("insurer config names unknown vendor", slog.String("vendor", key))
			continue
		}
		defaults[v] = cfg
	}
	r.log.Info("insurer config loaded", slog.Int("entries", len(raw)))
	return defaults
}

// IsEnabled reports whether a vendor accepts new quotation jobs.
// Vendors absent from the file default to enabled.
func (r *InsurerRegistry) IsEnabled(v domain.Vendor) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.entries[v]
	if !ok {
		return true
	}
	return cfg.Enabled
}

// Get returns the full config entry for a vendor.
func (r *InsurerRegistry) Get(v domain.Vendor) InsurerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.entries[v]
	if !ok {
		return InsurerConfig{Enabled: true, Description: v.Upper()}
	}
	return cfg
}
