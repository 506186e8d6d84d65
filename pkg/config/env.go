package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"
	EnvMongoTransactions = "MONGO_TRANSACTIONS"

	EnvLedgerBackend = "LEDGER_BACKEND"
	EnvSQLitePath    = "SQLITE_PATH"

	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisPassword    = "REDIS_PASSWORD"
	EnvRedisDB          = "REDIS_DB"
	EnvCalendarCacheTTL = "CALENDAR_CACHE_TTL"

	EnvPort           = "PORT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvMetricsEnabled = "METRICS_ENABLED"

	EnvOrderSigningSecret = "ORDER_SIGNING_SECRET"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvRollbackMaxAttempts    = "ROLLBACK_MAX_ATTEMPTS"
	EnvRollbackBackoff        = "ROLLBACK_BACKOFF"
	EnvMaxParticipantsPerItem = "MAX_PARTICIPANTS_PER_ITEM"
	EnvMaxLineItems           = "MAX_LINE_ITEMS"
)
