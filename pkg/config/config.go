package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"diffatours/pkg/client"
	kafka_config "diffatours/pkg/kafka/config"
	"diffatours/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration
	// MongoTransactions makes multi-item admission run in one Mongo transaction.
	// Needs a replica set; without it admission compensates item by item.
	MongoTransactions bool

	LedgerBackend string
	SQLitePath    string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CalendarCacheTTL time.Duration

	Port           string
	MetricsEnabled bool

	OrderSigningSecret string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RollbackMaxAttempts    int
	RollbackBackoff        time.Duration
	MaxParticipantsPerItem int
	MaxLineItems           int

	Kafka *kafka_config.Config

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the environment, exits on any invalid setting and logs the result.
func Load(serviceName string) *Config {
	cfg := read(serviceName)

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func read(serviceName string) *Config {
	return &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),
		MongoTransactions: getEnvBool(EnvMongoTransactions, DefaultMongoTransactions),

		LedgerBackend: strings.ToLower(getEnvStr(EnvLedgerBackend, DefaultLedgerBackend)),
		SQLitePath:    getEnvStr(EnvSQLitePath, DefaultSQLitePath),

		RedisAddr:        getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword:    getEnvStr(EnvRedisPassword, ""),
		RedisDB:          getEnvNum(EnvRedisDB, DefaultRedisDB),
		CalendarCacheTTL: getEnvDuration(EnvCalendarCacheTTL, DefaultCalendarCacheTTL),

		Port:           getEnvStr(EnvPort, DefaultPort),
		MetricsEnabled: getEnvBool(EnvMetricsEnabled, DefaultMetricsEnabled),

		OrderSigningSecret: getEnvStr(EnvOrderSigningSecret, ""),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		RollbackMaxAttempts:    getEnvNum(EnvRollbackMaxAttempts, DefaultRollbackMaxAttempts),
		RollbackBackoff:        getEnvDuration(EnvRollbackBackoff, DefaultRollbackBackoff),
		MaxParticipantsPerItem: getEnvNum(EnvMaxParticipantsPerItem, DefaultMaxParticipantsPerItem),
		MaxLineItems:           getEnvNum(EnvMaxLineItems, DefaultMaxLineItems),

		Kafka: kafka_config.Load(),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

// SetLedgerStore connects the configured ledger backend.
func (cfg *Config) SetLedgerStore() {
	switch cfg.LedgerBackend {
	case LedgerSQLite:
		cfg.Client.SetSQLite(cfg.Log, cfg.SQLitePath)
	default:
		cfg.SetMongo()
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// SetRedis connects the calendar cache. It does nothing when no address is configured.
func (cfg *Config) SetRedis() {
	if cfg.RedisAddr == "" {
		cfg.Log.Info("Calendar cache disabled, REDIS_ADDR is empty")
		return
	}
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.LedgerBackend {
	case LedgerMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case LedgerSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			errors = append(errors, "SQLitePath cannot be empty when LEDGER_BACKEND is sqlite")
		}
		if cfg.MongoTransactions {
			errors = append(errors, "MongoTransactions cannot be enabled when LEDGER_BACKEND is sqlite")
		}
	default:
		errors = append(errors, fmt.Sprintf("LedgerBackend must be %q or %q, got: %q", LedgerMongo, LedgerSQLite, cfg.LedgerBackend))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}
	if cfg.RedisAddr != "" && cfg.CalendarCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("CalendarCacheTTL must be positive when Redis is configured, got: %s", cfg.CalendarCacheTTL))
	}

	for name, d := range map[string]time.Duration{
		"RateLimitWindow": cfg.RateLimitWindow,
		"RequestTimeout":  cfg.RequestTimeout,
		"IdempotencyTTL":  cfg.IdempotencyTTL,
		"ReadTimeout":     cfg.ReadTimeout,
		"WriteTimeout":    cfg.WriteTimeout,
		"IdleTimeout":     cfg.IdleTimeout,
		"ShutdownTimeout": cfg.ShutdownTimeout,
	} {
		if d <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.RollbackMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("RollbackMaxAttempts must be at least 1, got: %d", cfg.RollbackMaxAttempts))
	}
	if cfg.RollbackBackoff < 0 {
		errors = append(errors, fmt.Sprintf("RollbackBackoff cannot be negative, got: %s", cfg.RollbackBackoff))
	}
	if cfg.MaxParticipantsPerItem < 1 {
		errors = append(errors, fmt.Sprintf("MaxParticipantsPerItem must be at least 1, got: %d", cfg.MaxParticipantsPerItem))
	}
	if cfg.MaxLineItems < 1 {
		errors = append(errors, fmt.Sprintf("MaxLineItems must be at least 1, got: %d", cfg.MaxLineItems))
	}

	if cfg.Kafka != nil {
		errors = append(errors, cfg.Kafka.Validate()...)
	}

	if len(errors) > 0 {
		// Map iteration above is unordered; keep the report stable.
		slices.Sort(errors)
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	attrs := []any{
		"ledger_backend", cfg.LedgerBackend,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"mongo_transactions", cfg.MongoTransactions,
		"sqlite_path", cfg.SQLitePath,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"redis_db", cfg.RedisDB,
		"calendar_cache_ttl", cfg.CalendarCacheTTL,
		"port", cfg.Port,
		"metrics_enabled", cfg.MetricsEnabled,
		"order_signing_secret_set", cfg.OrderSigningSecret != "",
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"rollback_max_attempts", cfg.RollbackMaxAttempts,
		"rollback_backoff", cfg.RollbackBackoff,
		"max_participants_per_item", cfg.MaxParticipantsPerItem,
		"max_line_items", cfg.MaxLineItems,
	}
	if cfg.Kafka != nil {
		attrs = append(attrs, cfg.Kafka.LogAttrs()...)
	}
	cfg.Log.Info("Configuration loaded successfully", attrs...)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// GracefulShutdown closes every store connection the service opened.
func (cfg *Config) GracefulShutdown(ctx context.Context) {
	if err := cfg.Client.GracefulShutdown(ctx); err != nil {
		cfg.Log.Error("Failed to close store connections", "error", err)
		return
	}
	cfg.Log.Info("Store connections closed")
}
