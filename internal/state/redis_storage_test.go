package state

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStorage_SetAndGet(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger(), time.Hour)

	ctx := context.Background()
	key := Key{ChatID: -100, UserID: 123}
	session := &Session{
		CurrentState: StateExpenseSelecting,
		Data: Data{Expense: &PendingExpense{
			Amount:      decimal.RequireFromString("12.5"),
			Currency:    "EUR",
			Description: "taxi",
			Selected:    []int64{123, 456},
		}},
	}

	require.NoError(t, storage.SetState(ctx, key, session))

	result, err := storage.GetState(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, result.Key)
	assert.Equal(t, StateExpenseSelecting, result.CurrentState)
	require.NotNil(t, result.Data.Expense)
	assert.True(t, result.Data.Expense.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, []int64{123, 456}, result.Data.Expense.Selected)
	assert.False(t, result.UpdatedAt.IsZero())
}

func TestRedisStorage_GetNotFound(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger(), 0)

	session, err := storage.GetState(context.Background(), Key{ChatID: 1, UserID: 999})
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestRedisStorage_ClearState(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger(), 0)

	ctx := context.Background()
	key := Key{ChatID: 1, UserID: 456}
	require.NoError(t, storage.SetState(ctx, key, &Session{CurrentState: StatePaymentAwaitingAmount}))
	require.NoError(t, storage.ClearState(ctx, key))

	session, err := storage.GetState(ctx, key)
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestRedisStorage_GetAllStates(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger(), 0)
	ctx := context.Background()

	require.NoError(t, storage.SetState(ctx, Key{ChatID: 1, UserID: 1}, &Session{CurrentState: StateIdle}))
	require.NoError(t, storage.SetState(ctx, Key{ChatID: 1, UserID: 2}, &Session{CurrentState: StateExpenseSelecting}))
	require.NoError(t, client.Set(ctx, "fsm:state:1:3", "not json", 0).Err())

	sessions, err := storage.GetAllStates(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestCleaner_Sweep(t *testing.T) {
	storage := newInMemoryStorage(0)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	storage.sessions[Key{ChatID: 1, UserID: 1}] = &Session{Key: Key{ChatID: 1, UserID: 1}, UpdatedAt: now.Add(-2 * time.Hour)}
	storage.sessions[Key{ChatID: 1, UserID: 2}] = &Session{Key: Key{ChatID: 1, UserID: 2}, UpdatedAt: now.Add(-time.Minute)}

	cleaner := NewCleaner(storage, testLogger(), time.Hour, time.Minute)
	cleaner.now = func() time.Time { return now }

	assert.Equal(t, 1, cleaner.Sweep(ctx))

	_, err := storage.GetState(ctx, Key{ChatID: 1, UserID: 1})
	assert.ErrorIs(t, err, ErrStateNotFound)
	_, err = storage.GetState(ctx, Key{ChatID: 1, UserID: 2})
	assert.NoError(t, err)
}
