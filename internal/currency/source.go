// Package currency looks up historical exchange rates and converts amounts
// for the ledger.
package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/debtbot/internal/domain"
)

var (
	// ErrUnsupportedCurrency is returned for codes outside the configured set.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrNoQuotes is returned when the lookback window holds no prices.
	ErrNoQuotes = errors.New("no quotes in lookback window")
)

// RateSource returns how many units of to one unit of from buys on day.
type RateSource interface {
	Rate(ctx context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error)
}

// RateSourceFunc adapts a function to RateSource.
type RateSourceFunc func(ctx context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error)

func (f RateSourceFunc) Rate(ctx context.Context, from, to domain.Currency, day time.Time) (decimal.Decimal, error) {
	return f(ctx, from, to, day)
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Converter turns a RateSource into the ledger's conversion function.
type Converter struct {
	source     RateSource
	currencies domain.CurrencySet
}

// NewConverter restricts source to currencies.
func NewConverter(source RateSource, currencies domain.CurrencySet) *Converter {
	return &Converter{source: source, currencies: currencies}
}

// Convert multiplies amount by the rate of asOf's calendar date.
func (c *Converter) Convert(ctx context.Context, from, to domain.Currency, amount decimal.Decimal, asOf time.Time) (decimal.Decimal, error) {
	if !c.currencies.Contains(from) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, from)
	}
	if !c.currencies.Contains(to) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, to)
	}
	if from == to {
		return amount, nil
	}

	rate, err := c.source.Rate(ctx, from, to, Day(asOf))
	if err != nil {
		return decimal.Zero, err
	}

	return amount.Mul(rate), nil
}

// Pairs lists every ordered pair of distinct currencies.
func Pairs(currencies domain.CurrencySet) [][2]domain.Currency {
	var pairs [][2]domain.Currency
	for _, from := range currencies {
		for _, to := range currencies {
			if from != to {
				pairs = append(pairs, [2]domain.Currency{from, to})
			}
		}
	}
	return pairs
}
