// Package handlers holds the asynq task handlers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/debtbot/internal/currency"
	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/jobs"
)

// ErrWarmupFailed is returned when no pair could be fetched.
var ErrWarmupFailed = errors.New("rates warmup fetched no pair")

// RatesWarmupHandler prefetches every currency pair for a day so the
// first conversions of the day hit the cache.
type RatesWarmupHandler struct {
	rates      currency.RateSource
	currencies domain.CurrencySet
	log        *slog.Logger
	now        func() time.Time
}

func NewRatesWarmupHandler(rates currency.RateSource, currencies domain.CurrencySet, log *slog.Logger) *RatesWarmupHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RatesWarmupHandler{
		rates:      rates,
		currencies: currencies,
		log:        log,
		now:        time.Now,
	}
}

func (h *RatesWarmupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.RatesWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "rates warmup: failed to decode payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	day, err := payload.Date(h.now())
	if err != nil {
		return fmt.Errorf("parse day %q: %v: %w", payload.Day, err, asynq.SkipRetry)
	}

	pairs := currency.Pairs(h.currencies)
	failed := 0
	for _, pair := range pairs {
		if _, err := h.rates.Rate(ctx, pair[0], pair[1], day); err != nil {
			failed++
			h.log.WarnContext(ctx, "rates warmup: pair failed",
				slog.String("from", pair[0].String()),
				slog.String("to", pair[1].String()),
				slog.Any("error", err),
			)
		}
	}

	h.log.InfoContext(ctx, "rates warmup finished",
		slog.String("day", day.Format(time.DateOnly)),
		slog.Int("pairs", len(pairs)),
		slog.Int("failed", failed),
	)

	if len(pairs) > 0 && failed == len(pairs) {
		return ErrWarmupFailed
	}
	return nil
}
