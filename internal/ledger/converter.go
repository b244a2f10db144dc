package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/debtbot/internal/domain"
)

// Converter converts amount from one currency to another at the rate in
// effect on asOf (calendar date precision).
type Converter interface {
	Convert(ctx context.Context, from, to domain.Currency, amount decimal.Decimal, asOf time.Time) (decimal.Decimal, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, from, to domain.Currency, amount decimal.Decimal, asOf time.Time) (decimal.Decimal, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, from, to domain.Currency, amount decimal.Decimal, asOf time.Time) (decimal.Decimal, error) {
	return f(ctx, from, to, amount, asOf)
}

// convert short-circuits identical currencies, rounds the result and wraps
// failures into *ConversionError.
func convert(ctx context.Context, conv Converter, from, to domain.Currency, amount decimal.Decimal, asOf time.Time) (decimal.Decimal, error) {
	if from == to {
		return domain.Round(amount), nil
	}

	if conv == nil {
		return decimal.Zero, &ConversionError{From: from, To: to, AsOf: asOf, Err: errNoConverter}
	}

	converted, err := conv.Convert(ctx, from, to, amount, asOf)
	if err != nil {
		var convErr *ConversionError
		if errors.As(err, &convErr) {
			return decimal.Zero, convErr
		}
		return decimal.Zero, &ConversionError{From: from, To: to, AsOf: asOf, Err: err}
	}

	if converted.Sign() < 0 {
		return decimal.Zero, &ConversionError{From: from, To: to, AsOf: asOf, Err: errNegativeRate}
	}

	return domain.Round(converted), nil
}
