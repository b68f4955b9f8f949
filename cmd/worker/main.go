// Command worker starts one queue consumer process: shared-subscription
// consumption, resource admission, handler execution and retry routing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brokerwiz/orchestrator/internal/adapter/observability"
	"github.com/brokerwiz/orchestrator/internal/adapter/queue/mqtt"
	"github.com/brokerwiz/orchestrator/internal/config"
	"github.com/brokerwiz/orchestrator/internal/domain"
	"github.com/brokerwiz/orchestrator/internal/worker"
)

func main() {
	vendorFlag := flag.String("vendor", "", "pin this worker to a single vendor queue")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the Prometheus endpoint")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	var vendor domain.Vendor
	if *vendorFlag != "" {
		vendor, err = domain.ParseVendor(*vendorFlag)
		if err != nil {
			logger.Error("unknown vendor", slog.String("vendor", *vendorFlag))
			os.Exit(1)
		}
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		// Persistent sessions are keyed by client id, so an unset id gets
		// a random suffix instead of colliding with a sibling process.
		workerID = "worker-" + uuid.NewString()[:8]
	}
	group := cfg.WorkerGroup
	if vendor != "" && group == "workers" {
		group = fmt.Sprintf("workers-%s", vendor)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	activity, err := observability.NewActivityLog(cfg.WorkerLogPath)
	if err != nil {
		logger.Error("activity log open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = activity.Close() }()

	cookies := worker.NewCookieStore(cfg.ProfilesDir, logger)
	defer cookies.Close()

	janitor := worker.NewJanitor(cfg.BotLogsDir, cfg.PDFDir,
		cfg.BotLogRetention, cfg.PDFRetention, cfg.CleanupInterval, logger)
	go janitor.Run(ctx)

	registry := domain.NewRegistry()
	registerHandlers(registry, cookies, cfg, logger)
	if len(registry.Registered()) == 0 {
		logger.Warn("no vendor handlers registered, all jobs will be dropped")
	}

	admission := worker.NewController(cfg.MaxConcurrent, cfg.MaxCPUPercent, cfg.MaxMemoryPercent, logger)

	// Scrape and ops endpoints on their own listener so the API port
	// stays free.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/admission", admission.StatsHandler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("metrics endpoint failed", slog.Any("error", err))
		}
	}()

	topics := mqtt.NewTopics(cfg.TopicPrefix)
	runner := mqtt.NewRunner(mqtt.RunnerConfig{
		Addr:       cfg.BrokerAddr(),
		WorkerID:   workerID,
		Group:      group,
		Vendor:     vendor,
		QoS:        cfg.QoS,
		JobTimeout: cfg.WorkerTimeout,
	}, topics, registry, admission, activity, logger)

	logger.Info("worker starting",
		slog.String("worker_id", workerID),
		slog.String("group", group),
		slog.Any("vendors", registry.Registered()))

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("bye")
}
