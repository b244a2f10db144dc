package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, NewRedisStore(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestManager_RunsOncePerKey(t *testing.T) {
	_, _, store := newTestStore(t)
	m := NewManager(store, nil)
	ctx := context.Background()

	calls := 0
	op := func(context.Context) (interface{}, error) {
		calls++
		return "done", nil
	}

	first, err := m.Execute(ctx, "update:1", time.Hour, op)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := m.Execute(ctx, "update:1", time.Hour, op)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, "done", second.Response)
	assert.Equal(t, 1, calls)
}

func TestManager_FailedRunCanBeRetried(t *testing.T) {
	_, _, store := newTestStore(t)
	m := NewManager(store, nil)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := m.Execute(ctx, "update:2", time.Hour, func(context.Context) (interface{}, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	res, err := m.Execute(ctx, "update:2", time.Hour, func(context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

func TestManager_ConcurrentDeliveryIsRejected(t *testing.T) {
	_, _, store := newTestStore(t)
	m := NewManager(store, nil)
	ctx := context.Background()

	locked, err := store.Lock(ctx, "update:3", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	_, err = m.Execute(ctx, "update:3", time.Hour, func(context.Context) (interface{}, error) {
		t.Fatal("operation must not run while another holder owns the key")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrRequestInProgress)
}

func TestCleaner_SweepDropsRecordsWithoutExpiry(t *testing.T) {
	mr, client, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "kept", &Record{Status: StatusCompleted}, time.Hour))
	mr.HSet(recordKey("orphan"), "status", StatusCompleted)

	cleaner := NewCleaner(client, nil, time.Minute, 24*time.Hour)
	removed, err := cleaner.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.True(t, mr.Exists(recordKey("kept")))
	assert.False(t, mr.Exists(recordKey("orphan")))
}

func TestUpdateKey(t *testing.T) {
	key := UpdateKey("cb", -100, "4412:1")
	assert.Equal(t, key, UpdateKey("cb", -100, "4412:1"))
	assert.True(t, strings.HasPrefix(key, "cb:-100:"))
	assert.Len(t, key, len("cb:-100:")+16)

	assert.NotEqual(t, key, UpdateKey("cb", -101, "4412:1"))
	assert.NotEqual(t, key, UpdateKey("msg", -100, "4412:1"))
	assert.NotEqual(t, UpdateKey("upd", 0, 7), UpdateKey("upd", 0, 8))
}
