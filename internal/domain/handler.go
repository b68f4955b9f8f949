package domain

import (
	"context"
	"sort"
	"sync"
)

// Handler runs a single quotation attempt for one vendor. Setup and
// Teardown bracket every Run; Teardown always executes, success or not.
// Run reports soft failure via ok=false and hard failure via err, which
// the worker classifies for the retry tiers.
type Handler interface {
	Setup(ctx context.Context) error
	Run(ctx context.Context) (ok bool, err error)
	Teardown(ctx context.Context)
}

// ErrorReporter is optionally implemented by handlers that surface
// structured errors to the external web application.
type ErrorReporter interface {
	ReportError(ctx context.Context, code, message, severity string)
}

// HandlerFactory builds a handler bound to one job.
type HandlerFactory func(jobID string, payload map[string]any) Handler

// Registry maps vendors to handler factories. Registration happens at
// composition-root time; message arrival only ever does a map lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[Vendor]HandlerFactory
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Vendor]HandlerFactory)}
}

// Register binds a factory to a vendor, replacing any previous binding.
func (r *Registry) Register(v Vendor, f HandlerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[v] = f
}

// Resolve returns the factory for a vendor, or false when no handler
// is registered (the worker drops such messages with a warning).
func (r *Registry) Resolve(v Vendor) (HandlerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[v]
	return f, ok
}

// Registered lists the vendors with a bound handler, sorted.
func (r *Registry) Registered() []Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Vendor, 0, len(r.factories))
	for v := range r.factories {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
