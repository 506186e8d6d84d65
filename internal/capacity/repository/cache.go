package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"diffatours/pkg/model"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

const (
	calendarKeyPrefix = "capacity:calendar"
	versionKeyPrefix  = "capacity:calendar-version"

	// minVersionTTL keeps month versions far longer than any cached month.
	minVersionTTL = 7 * 24 * time.Hour
)

// CalendarCache holds built month calendars under a per-month version. A day
// write bumps the version of its month, and a reader stores what it built
// under the version it saw before reading the ledger. A snapshot taken before
// a write therefore lands under a version no reader asks for again.
type CalendarCache interface {
	Version(ctx context.Context, excursionID string, year, month int) (int64, error)
	Get(ctx context.Context, excursionID string, year, month int, version int64) ([]*model.AvailabilityDay, error)
	Set(ctx context.Context, excursionID string, year, month int, version int64, days []*model.AvailabilityDay) error
	Invalidate(ctx context.Context, excursionID, date string) error
}

func CalendarKey(excursionID string, year, month int) string {
	return fmt.Sprintf("%s:%s:%04d-%02d", calendarKeyPrefix, excursionID, year, month)
}

func calendarEntryKey(excursionID string, year, month int, version int64) string {
	return fmt.Sprintf("%s:v%d", CalendarKey(excursionID, year, month), version)
}

func calendarVersionKey(excursionID string, year, month int) string {
	return fmt.Sprintf("%s:%s:%04d-%02d", versionKeyPrefix, excursionID, year, month)
}

// versionKeyForDate maps a YYYY-MM-DD date onto its month version key.
func versionKeyForDate(excursionID, date string) string {
	return fmt.Sprintf("%s:%s:%s", versionKeyPrefix, excursionID, date[:7])
}

type redisCalendarCache struct {
	client     *redis.Client
	ttl        time.Duration
	versionTTL time.Duration
}

// NewRedisCalendarCache returns a no-op cache when client is nil.
func NewRedisCalendarCache(client *redis.Client, ttl time.Duration) CalendarCache {
	if client == nil {
		return NoopCalendarCache{}
	}
	versionTTL := minVersionTTL
	if 2*ttl > versionTTL {
		versionTTL = 2 * ttl
	}
	return &redisCalendarCache{client: client, ttl: ttl, versionTTL: versionTTL}
}

func (c *redisCalendarCache) Version(ctx context.Context, excursionID string, year, month int) (int64, error) {
	key := calendarVersionKey(excursionID, year, month)

	version, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return version, nil
}

func (c *redisCalendarCache) Get(ctx context.Context, excursionID string, year, month int, version int64) ([]*model.AvailabilityDay, error) {
	key := calendarEntryKey(excursionID, year, month, version)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var days []*model.AvailabilityDay
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return days, nil
}

func (c *redisCalendarCache) Set(ctx context.Context, excursionID string, year, month int, version int64, days []*model.AvailabilityDay) error {
	key := calendarEntryKey(excursionID, year, month, version)

	payload, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate bumps the month version. Entries under older versions are never
// read again and expire on their own.
func (c *redisCalendarCache) Invalidate(ctx context.Context, excursionID, date string) error {
	if len(date) < 7 {
		return nil
	}
	key := versionKeyForDate(excursionID, date)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, c.versionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis incr %s: %w", key, err)
	}
	return nil
}

// NoopCalendarCache always misses.
type NoopCalendarCache struct{}

func (NoopCalendarCache) Version(context.Context, string, int, int) (int64, error) {
	return 0, nil
}

func (NoopCalendarCache) Get(context.Context, string, int, int, int64) ([]*model.AvailabilityDay, error) {
	return nil, ErrCacheMiss
}

func (NoopCalendarCache) Set(context.Context, string, int, int, int64, []*model.AvailabilityDay) error {
	return nil
}

func (NoopCalendarCache) Invalidate(context.Context, string, string) error {
	return nil
}
