// Package app wires configuration, adapters and handlers into the
// runnable HTTP surface.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brokerwiz/orchestrator/internal/adapter/httpserver"
	"github.com/brokerwiz/orchestrator/internal/adapter/observability"
	"github.com/brokerwiz/orchestrator/internal/config"
)

// NewRouter assembles the chi router: public health and metrics, then
// the bearer-guarded, rate-limited API group.
func NewRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.SecurityHeaders)
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   cfg.CORSMethods,
		AllowedHeaders:   cfg.CORSHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
	}))

	r.Get("/health", srv.HealthHandler)
	r.Get("/metrics", srv.MetricsHandler)
	r.Method(http.MethodGet, "/metrics/prometheus", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httpserver.BearerAuth(cfg.APIBearerToken))
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		r.Post("/api/cotizaciones/batch", srv.BatchHandler)
		r.Post("/api/{vendor}/cotizar", srv.QuoteHandler)
		r.Get("/api/dlq", srv.DLQListHandler)
		r.Get("/api/dlq/{vendor}", srv.DLQVendorHandler)
		r.Post("/api/dlq/{job_id}/retry", srv.DLQRetryHandler)
	})

	return r
}
