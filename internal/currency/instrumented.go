package currency

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/debtbot/internal/domain"
	apperrors "github.com/Proton-105/debtbot/internal/errors"
	"github.com/Proton-105/debtbot/pkg/metrics"
)

// InstrumentedSource records lookup latency and outcome under a source label.
type InstrumentedSource struct {
	next  RateSource
	label string
}

func NewInstrumentedSource(next RateSource, label string) *InstrumentedSource {
	return &InstrumentedSource{next: next, label: label}
}

func (s *InstrumentedSource) Rate(ctx context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error) {
	start := time.Now()
	rate, err := s.next.Rate(ctx, from, to, day)
	metrics.RecordRateLookup(s.label, lookupStatus(err), time.Since(start))
	return rate, err
}

func lookupStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrNoQuotes):
		return "no_quotes"
	case apperrors.IsRetryable(err):
		return "unavailable"
	default:
		return "error"
	}
}
