package currency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/debtbot/internal/domain"
	apperrors "github.com/Proton-105/debtbot/internal/errors"
	"github.com/Proton-105/debtbot/pkg/redis"
)

var testDay = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chartJSON(timestamps []int64, closes []string) string {
	ts := "["
	for i, v := range timestamps {
		if i > 0 {
			ts += ","
		}
		ts += fmt.Sprintf("%d", v)
	}
	ts += "]"
	cl := "["
	for i, v := range closes {
		if i > 0 {
			cl += ","
		}
		cl += v
	}
	cl += "]"
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":%s,"indicators":{"quote":[{"close":%s}]}}],"error":null}}`, ts, cl)
}

type countingSource struct {
	calls atomic.Int32
	rate  decimal.Decimal
	err   error
}

func (s *countingSource) Rate(context.Context, domain.Currency, domain.Currency, time.Time) (decimal.Decimal, error) {
	s.calls.Add(1)
	return s.rate, s.err
}

func TestYahooProvider_PicksLastCloseInWindow(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		body := chartJSON(
			[]int64{
				testDay.AddDate(0, 0, -2).Unix(),
				testDay.AddDate(0, 0, -1).Unix(),
				testDay.Unix(),
				testDay.AddDate(0, 0, 1).Unix(),
			},
			[]string{"0.91", "0.92", "null", "0.99"},
		)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, time.Second, 10, discardLogger())
	rate, err := p.Rate(context.Background(), domain.USD, domain.EUR, testDay.Add(13*time.Hour))
	require.NoError(t, err)

	assert.True(t, rate.Equal(decimal.RequireFromString("0.92")), rate.String())
	assert.Equal(t, "/v8/finance/chart/USDEUR=X", gotPath)
	assert.Equal(t, []string{fmt.Sprint(testDay.AddDate(0, 0, -10).Unix())}, gotQuery["period1"])
	assert.Equal(t, []string{fmt.Sprint(testDay.AddDate(0, 0, 1).Unix())}, gotQuery["period2"])
	assert.Equal(t, []string{"1d"}, gotQuery["interval"])
}

func TestYahooProvider_InvertsRubSource(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(chartJSON([]int64{testDay.Unix()}, []string{"80"})))
	}))
	defer srv.Close()

	p := NewYahooProvider(srv.URL, time.Second, 10, discardLogger())
	rate, err := p.Rate(context.Background(), domain.RUB, domain.USD, testDay)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/USDRUB=X", gotPath)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.0125")), rate.String())
}

func TestYahooProvider_Errors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		retryable bool
		noQuotes  bool
	}{
		{name: "empty window", status: http.StatusOK, body: chartJSON(nil, nil), noQuotes: true},
		{name: "only nulls", status: http.StatusOK, body: chartJSON([]int64{testDay.Unix()}, []string{"null"}), noQuotes: true},
		{name: "server error", status: http.StatusBadGateway, body: "oops", retryable: true},
		{name: "throttled", status: http.StatusTooManyRequests, body: "", retryable: true},
		{name: "unknown symbol", status: http.StatusNotFound, body: `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewYahooProvider(srv.URL, time.Second, 10, discardLogger())
			_, err := p.Rate(context.Background(), domain.EUR, domain.USD, testDay)
			require.Error(t, err)

			assert.Equal(t, tc.retryable, apperrors.IsRetryable(err))
			assert.Equal(t, tc.noQuotes, errors.Is(err, ErrNoQuotes))
		})
	}
}

func TestConverter(t *testing.T) {
	src := &countingSource{rate: decimal.RequireFromString("1.5")}
	conv := NewConverter(src, domain.NewCurrencySet([]string{"USD", "EUR"}))
	ctx := context.Background()

	out, err := conv.Convert(ctx, domain.USD, domain.USD, decimal.NewFromInt(7), testDay)
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.NewFromInt(7)))
	assert.Zero(t, src.calls.Load())

	out, err = conv.Convert(ctx, domain.EUR, domain.USD, decimal.NewFromInt(10), testDay)
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, int32(1), src.calls.Load())

	_, err = conv.Convert(ctx, domain.RUB, domain.USD, decimal.NewFromInt(10), testDay)
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}

func newCache(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedSource_HitsProviderOncePerDay(t *testing.T) {
	mr, client := newCache(t)
	src := &countingSource{rate: decimal.RequireFromString("0.9")}
	cache := NewCachedSource(src, client, 24*time.Hour, discardLogger())
	cache.now = func() time.Time { return testDay.AddDate(0, 1, 0) }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rate, err := cache.Rate(ctx, domain.USD, domain.EUR, testDay.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.RequireFromString("0.9")))
	}
	assert.Equal(t, int32(1), src.calls.Load())

	key := "rate:USD:EUR:2024-03-15"
	assert.Equal(t, key, CacheKey(domain.USD, domain.EUR, testDay))
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "0.9", got)
	assert.Equal(t, 24*time.Hour, mr.TTL(key))
}

func TestCachedSource_TodayIsShortLived(t *testing.T) {
	mr, client := newCache(t)
	src := &countingSource{rate: decimal.RequireFromString("0.9")}
	cache := NewCachedSource(src, client, 24*time.Hour, discardLogger())
	cache.now = func() time.Time { return testDay.Add(10 * time.Hour) }

	_, err := cache.Rate(context.Background(), domain.USD, domain.EUR, testDay)
	require.NoError(t, err)
	assert.Equal(t, todayCacheTTL, mr.TTL(CacheKey(domain.USD, domain.EUR, testDay)))
}

func TestCachedSource_IgnoresMalformedAndSkipsFailures(t *testing.T) {
	mr, client := newCache(t)
	key := CacheKey(domain.EUR, domain.RUB, testDay)
	require.NoError(t, mr.Set(key, "garbage"))

	src := &countingSource{rate: decimal.RequireFromString("100")}
	cache := NewCachedSource(src, client, time.Hour, discardLogger())
	rate, err := cache.Rate(context.Background(), domain.EUR, domain.RUB, testDay)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(100)))

	failing := &countingSource{err: apperrors.NewConversionError(ErrNoQuotes)}
	cache = NewCachedSource(failing, client, time.Hour, discardLogger())
	_, err = cache.Rate(context.Background(), domain.USD, domain.RUB, testDay)
	require.Error(t, err)
	assert.False(t, mr.Exists(CacheKey(domain.USD, domain.RUB, testDay)))
}

func TestResilientSource_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	src := RateSourceFunc(func(context.Context, domain.Currency, domain.Currency, time.Time) (decimal.Decimal, error) {
		if calls.Add(1) < 3 {
			return decimal.Zero, apperrors.NewExternalAPIError(yahooAPIName, errors.New("timeout"))
		}
		return decimal.NewFromInt(2), nil
	})

	r := NewResilientSource(src, 3, time.Minute)
	r.retry.InitialDelay = time.Millisecond

	rate, err := r.Rate(context.Background(), domain.USD, domain.EUR, testDay)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilientSource_PermanentFailureIsNotRetried(t *testing.T) {
	src := &countingSource{err: apperrors.NewConversionError(ErrNoQuotes)}
	r := NewResilientSource(src, 5, time.Minute)

	_, err := r.Rate(context.Background(), domain.USD, domain.EUR, testDay)
	assert.ErrorIs(t, err, ErrNoQuotes)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, apperrors.StateClosed, r.BreakerState())
}

func TestResilientSource_OpensBreaker(t *testing.T) {
	src := &countingSource{err: apperrors.NewExternalAPIError(yahooAPIName, errors.New("down"))}
	r := NewResilientSource(src, 1, time.Minute)
	ctx := context.Background()

	for i := 0; i < apperrors.MinRequests; i++ {
		_, err := r.Rate(ctx, domain.USD, domain.EUR, testDay)
		require.Error(t, err)
	}
	require.Equal(t, apperrors.StateOpen, r.BreakerState())

	_, err := r.Rate(ctx, domain.USD, domain.EUR, testDay)
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, int32(apperrors.MinRequests), src.calls.Load())
	assert.Equal(t, "circuit_open", lookupStatus(err))
}

func TestPairs(t *testing.T) {
	pairs := Pairs(domain.NewCurrencySet([]string{"USD", "EUR", "RUB"}))
	assert.Len(t, pairs, 6)
	assert.Contains(t, pairs, [2]domain.Currency{domain.RUB, domain.USD})
}
