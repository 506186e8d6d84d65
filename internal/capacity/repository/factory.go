package repository

import "diffatours/pkg/config"

// NewFromConfig returns the ledger selected by LEDGER_BACKEND. The store
// connection must already be set on cfg.Client.
func NewFromConfig(cfg *config.Config) (CapacityRepository, error) {
	switch cfg.LedgerBackend {
	case config.LedgerSQLite:
		return NewSQLiteCapacityRepository(cfg.Client.SQLite, cfg.WriteTimeout)
	default:
		if cfg.MongoTransactions {
			return NewMongoTxCapacityRepository(cfg), nil
		}
		return NewMongoCapacityRepository(cfg), nil
	}
}

// NewCalendarCacheFromConfig falls back to the no-op cache when Redis is not configured.
func NewCalendarCacheFromConfig(cfg *config.Config) CalendarCache {
	if cfg.Client.Redis == nil {
		return NoopCalendarCache{}
	}
	return NewRedisCalendarCache(cfg.Client.Redis, cfg.CalendarCacheTTL)
}
