package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, ttl, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "ledger:chat:1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ledger:chat:1"))

	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "ledger:chat:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists("ledger:chat:1"))

	again, err := locker.Lock(ctx, "ledger:chat:1")
	require.NoError(t, err)
	again()
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	go func() {
		time.Sleep(80 * time.Millisecond)
		unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	second, err := locker.Lock(waitCtx, "k")
	require.NoError(t, err)
	second()
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	second, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	unlock()
	assert.True(t, mr.Exists("k"))

	second()
	assert.False(t, mr.Exists("k"))
}
