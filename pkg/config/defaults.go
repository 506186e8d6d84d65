package config

import "time"

const (
	LedgerMongo  = "mongo"
	LedgerSQLite = "sqlite"
)

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "diffatours"
	DefaultMongoConnTimeout  = 10 * time.Second
	DefaultMongoTransactions = false

	DefaultLedgerBackend = LedgerMongo
	DefaultSQLitePath    = "capacity.db"

	DefaultRedisAddr        = ""
	DefaultRedisDB          = 0
	DefaultCalendarCacheTTL = 5 * time.Minute

	DefaultPort           = "8080"
	DefaultLogLevel       = "info"
	DefaultMetricsEnabled = true

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultRollbackMaxAttempts    = 3
	DefaultRollbackBackoff        = 50 * time.Millisecond
	DefaultMaxParticipantsPerItem = 500
	DefaultMaxLineItems           = 50
)
