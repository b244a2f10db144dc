package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/debtbot/internal/ledger"
)

const (
	defaultLockTTL   = 30 * time.Second
	lockPollInterval = 50 * time.Millisecond
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a ledger.Locker shared by every bot replica. Locks expire
// after ttl so a crashed holder cannot block a chat forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

var _ ledger.Locker = (*RedisLocker)(nil)

// NewRedisLocker constructs a RedisLocker. A zero ttl means 30 seconds.
func NewRedisLocker(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return &RedisLocker{client: client, ttl: ttl, log: log}
}

// Lock polls SETNX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if acquired {
			return l.releaser(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.log.Error("failed to release ledger lock", slog.String("key", key), slog.Any("error", err))
		}
	}
}
