// Command server starts the quotation ingress API: enqueue endpoints,
// DLQ operations, health and metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brokerwiz/orchestrator/internal/adapter/httpserver"
	"github.com/brokerwiz/orchestrator/internal/adapter/observability"
	"github.com/brokerwiz/orchestrator/internal/adapter/queue/mqtt"
	"github.com/brokerwiz/orchestrator/internal/app"
	"github.com/brokerwiz/orchestrator/internal/config"
	"github.com/brokerwiz/orchestrator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process.
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	topics := mqtt.NewTopics(cfg.TopicPrefix)

	// Publisher session for ingress; supervised so broker restarts only
	// cost 503s while the redial loop runs.
	publisher := mqtt.NewSupervisor(mqtt.Options{
		Addr:     cfg.BrokerAddr(),
		ClientID: cfg.ClientID,
		Session:  mqtt.SessionEphemeral,
		Will:     mqtt.OfflineWill(topics, cfg.ClientID),
		Logger:   logger,
	}, topics)
	go func() {
		if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("publisher supervisor exited", slog.Any("error", err))
		}
	}()

	// DLQ index with its own persistent session.
	dlq := mqtt.NewDLQManager(cfg.BrokerAddr(), topics, cfg.QoS, logger)
	go func() {
		if err := dlq.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dlq manager exited", slog.Any("error", err))
		}
	}()

	// $SYS watcher feeding the metrics document.
	stats := mqtt.NewStatsClient(cfg.BrokerAddr(), logger)
	go func() {
		if err := stats.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("stats client exited", slog.Any("error", err))
		}
	}()

	health := usecase.NewHealthCache(publisher)
	collector := usecase.NewCollector(usecase.CollectorConfig{
		WorkerLogPath: cfg.WorkerLogPath,
		BrokerStats: func() (int64, int64) {
			s := stats.Stats()
			return s.StoredMessages, s.ConnectedClients
		},
		BrokerHealthy: stats.BrokerHealthy,
		Logger:        logger,
	})

	enqueuer := mqtt.NewEnqueuer(publisher, topics, cfg.QoS, cfg.MaxRetries, logger)
	insurers := httpserver.NewInsurerRegistry(cfg.InsuranceConfigPath, logger)
	srv := httpserver.NewServer(enqueuer, dlq, health, collector, insurers, logger)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:      app.NewRouter(cfg, srv),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", slog.Any("error", err))
	}
	logger.Info("bye")
}
