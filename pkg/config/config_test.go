package config

import (
	"strings"
	"testing"
	"time"
)

func TestRead_Defaults(t *testing.T) {
	cfg := read("capacity")

	if cfg.LedgerBackend != LedgerMongo {
		t.Errorf("LedgerBackend = %q, want %q", cfg.LedgerBackend, LedgerMongo)
	}
	if cfg.RollbackMaxAttempts != DefaultRollbackMaxAttempts {
		t.Errorf("RollbackMaxAttempts = %d", cfg.RollbackMaxAttempts)
	}
	if cfg.Kafka == nil || cfg.Kafka.Enabled {
		t.Errorf("Kafka should be loaded and disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got: %v", err)
	}
}

func TestRead_FromEnvironment(t *testing.T) {
	t.Setenv(EnvLedgerBackend, "SQLite")
	t.Setenv(EnvSQLitePath, "/tmp/ledger.db")
	t.Setenv(EnvRollbackBackoff, "250ms")
	t.Setenv(EnvMaxParticipantsPerItem, "40")
	t.Setenv(EnvRedisAddr, "localhost:6379")
	t.Setenv(EnvCalendarCacheTTL, "not-a-duration")

	cfg := read("capacity")

	if cfg.LedgerBackend != LedgerSQLite {
		t.Errorf("LedgerBackend = %q, want sqlite", cfg.LedgerBackend)
	}
	if cfg.RollbackBackoff != 250*time.Millisecond {
		t.Errorf("RollbackBackoff = %s", cfg.RollbackBackoff)
	}
	if cfg.MaxParticipantsPerItem != 40 {
		t.Errorf("MaxParticipantsPerItem = %d", cfg.MaxParticipantsPerItem)
	}
	if cfg.CalendarCacheTTL != DefaultCalendarCacheTTL {
		t.Errorf("unparseable duration should fall back to default, got %s", cfg.CalendarCacheTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestValidate_CollectsEveryError(t *testing.T) {
	cfg := read("capacity")
	cfg.Port = "99999"
	cfg.LedgerBackend = "postgres"
	cfg.RollbackMaxAttempts = 0
	cfg.RequestTimeout = 0
	cfg.MaxLineItems = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{"Port", "LedgerBackend", "RollbackMaxAttempts", "RequestTimeout", "MaxLineItems"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got:\n%s", want, err)
		}
	}
}

func TestValidate_KafkaOnlyCheckedWhenEnabled(t *testing.T) {
	cfg := read("capacity")
	cfg.Kafka.Brokers = nil

	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled kafka should not be validated: %v", err)
	}

	cfg.Kafka.Enabled = true
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "broker") {
		t.Errorf("enabled kafka without brokers should fail, got: %v", err)
	}
}

func TestValidate_SQLiteRejectsMongoTransactions(t *testing.T) {
	cfg := read("capacity")
	cfg.LedgerBackend = LedgerSQLite
	cfg.MongoTransactions = true

	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for MongoTransactions on the sqlite backend")
	}
}

func TestRedactMongoURI(t *testing.T) {
	got := redactMongoURI("mongodb://admin:s3cret@db:27017/diffatours")
	if strings.Contains(got, "s3cret") || !strings.Contains(got, "***:***@db") {
		t.Errorf("redactMongoURI() = %s", got)
	}
}
