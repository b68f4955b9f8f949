package main

import (
	"log/slog"

	"github.com/brokerwiz/orchestrator/internal/config"
	"github.com/brokerwiz/orchestrator/internal/domain"
	"github.com/brokerwiz/orchestrator/internal/worker"
)

// registerHandlers binds vendor driver factories into the registry.
// Each driver package exposes a constructor taking its job id, payload
// and shared infrastructure (cookie store, artifact paths); bind them
// here, for example:
//
//	registry.Register(domain.VendorHDI, func(jobID string, payload map[string]any) domain.Handler {
//		return hdibot.New(jobID, payload, cookies, cfg.PDFDir)
//	})
//
// The worker runtime drops jobs for vendors with no registered handler,
// so deploying a build without a driver is safe for the queue.
func registerHandlers(registry *domain.Registry, cookies *worker.CookieStore, cfg config.Config, log *slog.Logger) {
}
