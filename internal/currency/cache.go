package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/pkg/redis"
)

const (
	defaultCacheTTL = 24 * time.Hour
	todayCacheTTL   = 15 * time.Minute
)

// KV is the subset of the Redis client used for caching rates.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedSource memoizes rates per pair and calendar day.
type CachedSource struct {
	next   RateSource
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewCachedSource wraps next with a Redis backed cache.
func NewCachedSource(next RateSource, kv KV, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{next: next, kv: kv, ttl: ttl, logger: logger, now: time.Now}
}

// CacheKey is the Redis key holding the rate of from→to on day.
func CacheKey(from, to domain.Currency, day time.Time) string {
	return fmt.Sprintf("rate:%s:%s:%s", from, to, Day(day).Format(time.DateOnly))
}

func (c *CachedSource) Rate(ctx context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error) {
	key := CacheKey(from, to, day)

	raw, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		rate, parseErr := decimal.NewFromString(raw)
		if parseErr == nil && rate.IsPositive() {
			return rate, nil
		}
		c.logger.Warn("discarding malformed cached rate", slog.String("key", key), slog.String("value", raw))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("rate cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	rate, err := c.next.Rate(ctx, from, to, day)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.kv.Set(ctx, key, rate.String(), c.ttlFor(day)); err != nil {
		c.logger.Warn("rate cache write failed", slog.String("key", key), slog.Any("error", err))
	}

	return rate, nil
}

// ttlFor keeps today's rate short lived since the daily bar is still open.
func (c *CachedSource) ttlFor(day time.Time) time.Duration {
	if !Day(day).Before(Day(c.now())) && c.ttl > todayCacheTTL {
		return todayCacheTTL
	}
	return c.ttl
}
