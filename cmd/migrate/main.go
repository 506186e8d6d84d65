package main

import (
	"context"
	"time"

	"diffatours/internal/capacity/repository"
	mongoMigration "diffatours/internal/migrations/mongo"
	"diffatours/pkg/config"
)

const JobName = "ledger-migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetLedgerStore()
	defer cfg.GracefulShutdown(context.Background())

	cfg.Log.Info("Starting ledger migration job", "ledger_backend", cfg.LedgerBackend)

	switch cfg.LedgerBackend {
	case config.LedgerSQLite:
		if _, err := repository.NewSQLiteCapacityRepository(cfg.Client.SQLite, 0); err != nil {
			cfg.Log.Fatal("SQLite migration failed", "error", err)
		}
	default:
		if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
			cfg.Log.Fatal("Mongo migration failed", "error", err)
		}
	}

	cfg.Log.Info("Migration completed successfully")
}
