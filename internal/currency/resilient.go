package currency

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/debtbot/internal/domain"
	apperrors "github.com/Proton-105/debtbot/internal/errors"
)

// ResilientSource retries transient provider failures and stops calling a
// provider that keeps failing.
type ResilientSource struct {
	next    RateSource
	retry   apperrors.RetryConfig
	breaker *apperrors.CircuitBreaker
}

// NewResilientSource wraps next. attempts <= 0 keeps the default retry policy.
func NewResilientSource(next RateSource, attempts int, breakerTimeout time.Duration) *ResilientSource {
	retry := apperrors.DefaultRetryConfig
	if attempts > 0 {
		retry.MaxAttempts = attempts
	}

	return &ResilientSource{
		next:    next,
		retry:   retry,
		breaker: apperrors.NewCircuitBreaker(apperrors.WithOpenTimeout(breakerTimeout)),
	}
}

func (r *ResilientSource) Rate(ctx context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error) {
	var (
		rate      decimal.Decimal
		permanent error
	)

	err := apperrors.WithRetry(ctx, r.retry, func() error {
		return r.breaker.Call(func() error {
			var err error
			rate, err = r.next.Rate(ctx, from, to, day)
			// Lookups that cannot succeed say nothing about provider health.
			if err != nil && !apperrors.IsRetryable(err) {
				permanent = err
				return nil
			}
			return err
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	if permanent != nil {
		return decimal.Zero, permanent
	}

	return rate, nil
}

// BreakerState exposes the breaker for health reporting.
func (r *ResilientSource) BreakerState() apperrors.State {
	return r.breaker.State()
}
