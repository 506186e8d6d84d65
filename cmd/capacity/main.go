package main

import (
	"context"

	"diffatours/internal/capacity/events"
	"diffatours/internal/capacity/handler"
	"diffatours/internal/capacity/metrics"
	"diffatours/internal/capacity/repository"
	"diffatours/internal/capacity/service"
	"diffatours/internal/capacity/validator"
	"diffatours/pkg/app"
	"diffatours/pkg/config"
	"diffatours/pkg/contracts"
	kafka_middleware "diffatours/pkg/kafka/middleware"
)

const ServiceName = "capacity"

type services struct {
	capacity  service.CapacityService
	admission service.AdmissionService
	publisher events.Publisher
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetLedgerStore()
	cfg.SetRedis()

	cfg.Log.Info("Starting Capacity service")
	m := metrics.New()
	svc := initServices(cfg, m)

	serverApp := app.NewApplication(cfg).
		WithMetrics(m.Handler(), m).
		OnShutdown(func(context.Context) error { return svc.publisher.Close() })
	serverApp.SetApp(
		contracts.Handlers{
			handler.NewCapacityHandler(svc.capacity, cfg.Log),
			handler.NewAdmissionHandler(svc.admission, cfg.Log),
		},
		handler.NewHealthHandler(cfg.Client, cfg.Log),
	)
	serverApp.Run()
}

func initServices(cfg *config.Config, m *metrics.Metrics) services {
	repo, err := repository.NewFromConfig(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to prepare capacity ledger", "error", err)
	}
	if cfg.MongoTransactions {
		cfg.Log.Info("Mongo transactions enabled, multi-day orders commit atomically")
	}
	cache := repository.NewCalendarCacheFromConfig(cfg)

	publisher, err := events.NewKafkaPublisher(cfg.Kafka, cfg.Log, kafka_middleware.NewMetrics(m.Registerer()))
	if err != nil {
		cfg.Log.Fatal("Failed to create capacity event publisher", "error", err)
	}

	capacityValidator := validator.NewCapacityValidator(cfg.Log, validator.Limits{
		MaxParticipantsPerItem: cfg.MaxParticipantsPerItem,
		MaxLineItems:           cfg.MaxLineItems,
	})

	cfg.Log.Info("Capacity service initialized",
		"ledger_backend", cfg.LedgerBackend,
		"calendar_cache", cfg.Client.Redis != nil,
		"kafka", cfg.Kafka.Enabled,
	)
	return services{
		capacity:  service.NewCapacityService(repo, cache, capacityValidator, m, cfg),
		admission: service.NewAdmissionService(repo, cache, publisher, capacityValidator, m, cfg),
		publisher: publisher,
	}
}
