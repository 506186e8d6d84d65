package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"diffatours/internal/capacity/metrics"
	"diffatours/internal/capacity/repository"
	"diffatours/internal/capacity/service"
	"diffatours/internal/capacity/validator"
	"diffatours/internal/reconciler"
	"diffatours/pkg/config"
	"diffatours/pkg/kafka"
	kafka_middleware "diffatours/pkg/kafka/middleware"
)

const ServiceName = "reconciler"

func main() {
	cfg := config.Load(ServiceName)
	if !cfg.Kafka.Enabled {
		cfg.Log.Fatal("Reconciler needs Kafka, set KAFKA_ENABLED=true")
	}
	cfg.SetLedgerStore()
	cfg.SetRedis()

	cfg.Log.Info("Starting Reconciler worker")
	m := metrics.New()

	consumer, err := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.CapacityReconciliationTopic,
		cfg.Kafka.ReconcilerGroupID,
		cfg.Kafka.CapacityDLQTopic,
		reconciler.NewHandler(initAdmission(cfg, m), cfg.Log).Handle,
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create reconciliation consumer", "error", err)
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(kafka_middleware.NewMetrics(m.Registerer()).ConsumerMiddleware())

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsServer = &http.Server{Addr: ":" + cfg.Port, Handler: m.Handler(), ReadTimeout: cfg.ReadTimeout}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cfg.Log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Reconciliation consumer stopped", "error", err)
	}

	cfg.Log.Info("Shutting down Reconciler worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close consumer", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			cfg.Log.Error("Metrics server shutdown failed", "error", err)
		}
	}
	cfg.GracefulShutdown(shutdownCtx)
}

// initAdmission wires only the release path. The worker publishes no events of
// its own; failed releases are retried by the consumer and dead-lettered.
func initAdmission(cfg *config.Config, m *metrics.Metrics) service.AdmissionService {
	repo, err := repository.NewFromConfig(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to prepare capacity ledger", "error", err)
	}

	capacityValidator := validator.NewCapacityValidator(cfg.Log, validator.Limits{
		MaxParticipantsPerItem: cfg.MaxParticipantsPerItem,
		MaxLineItems:           cfg.MaxLineItems,
	})
	return service.NewAdmissionService(repo, repository.NewCalendarCacheFromConfig(cfg), nil, capacityValidator, m, cfg)
}
