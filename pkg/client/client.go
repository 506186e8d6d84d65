package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"diffatours/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client holds the backing store connections of a service. Only the stores a
// service was configured for are set.
type Client struct {
	Mongo  *mongo.Client
	SQLite *sql.DB
	Redis  *redis.Client
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB", "error", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
}

// SQLiteDSN builds the connection string of the ledger database. The ledger
// starts its own write transactions with BEGIN IMMEDIATE.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
}

func (c *Client) SetSQLite(log *logger.Logger, path string) {
	db, err := sql.Open("sqlite3", SQLiteDSN(path))
	if err != nil {
		log.Fatal("Failed to open SQLite database", "error", err, "path", path)
	}
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping SQLite database", "error", err, "path", path)
	}

	log.Info("Successfully opened SQLite database", "path", path)
	c.SQLite = db
}

func (c *Client) SetRedis(log *logger.Logger, addr, password string, db int, connTimeout time.Duration) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: connTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	// The calendar cache is optional, so an unreachable Redis only degrades reads.
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis is not reachable, calendar cache will miss until it recovers", "error", err, "addr", addr)
	} else {
		log.Info("Successfully connected to Redis", "addr", addr)
	}
	c.Redis = rdb
}

// Ping checks the ledger stores that are configured.
func (c *Client) Ping(ctx context.Context) error {
	if c.Mongo != nil {
		if err := c.Mongo.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
	}
	if c.SQLite != nil {
		if err := c.SQLite.PingContext(ctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}
	return nil
}

func (c *Client) GracefulShutdown(ctx context.Context) error {
	var errs []error
	if c.Mongo != nil {
		if err := c.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo disconnect: %w", err))
		}
	}
	if c.SQLite != nil {
		if err := c.SQLite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}
