package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/debtbot/internal/currency"
	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/jobs"
)

type lookup struct {
	from, to domain.Currency
	day      time.Time
}

func recordingSource(fail func(from, to domain.Currency) bool) (*[]lookup, currency.RateSource) {
	var (
		mu    sync.Mutex
		calls []lookup
	)
	src := currency.RateSourceFunc(func(_ context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, lookup{from: from, to: to, day: day})
		if fail != nil && fail(from, to) {
			return decimal.Zero, assert.AnError
		}
		return decimal.NewFromInt(2), nil
	})
	return &calls, src
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRatesWarmup_FetchesEveryPairForToday(t *testing.T) {
	calls, src := recordingSource(nil)
	h := NewRatesWarmupHandler(src, domain.NewCurrencySet([]string{"USD", "EUR", "RUB"}), quietLog())
	h.now = func() time.Time { return time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC) }

	task, err := jobs.NewRatesWarmupTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	require.Len(t, *calls, 6)
	for _, c := range *calls {
		assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), c.day)
		assert.NotEqual(t, c.from, c.to)
	}
}

func TestRatesWarmup_ExplicitDay(t *testing.T) {
	calls, src := recordingSource(nil)
	h := NewRatesWarmupHandler(src, domain.NewCurrencySet([]string{"USD", "EUR"}), quietLog())

	task, err := jobs.NewRatesWarmupTask(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))

	require.Len(t, *calls, 2)
	assert.Equal(t, "2023-12-31", (*calls)[0].day.Format(time.DateOnly))
}

func TestRatesWarmup_Failures(t *testing.T) {
	_, partial := recordingSource(func(from, _ domain.Currency) bool { return from == domain.RUB })
	h := NewRatesWarmupHandler(partial, domain.NewCurrencySet([]string{"USD", "RUB"}), quietLog())
	task, err := jobs.NewRatesWarmupTask(time.Time{})
	require.NoError(t, err)
	assert.NoError(t, h.ProcessTask(context.Background(), task))

	_, broken := recordingSource(func(domain.Currency, domain.Currency) bool { return true })
	h = NewRatesWarmupHandler(broken, domain.NewCurrencySet([]string{"USD", "RUB"}), quietLog())
	assert.ErrorIs(t, h.ProcessTask(context.Background(), task), ErrWarmupFailed)

	bad := asynq.NewTask(jobs.TaskTypeRatesWarmup, []byte("{"))
	assert.ErrorIs(t, h.ProcessTask(context.Background(), bad), asynq.SkipRetry)
}
