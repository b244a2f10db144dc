package currency

import (
	"log/slog"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/pkg/config"
)

// Stack is the assembled lookup chain.
type Stack struct {
	// Rates is the cached, resilient source; the warmup job fills it.
	Rates     RateSource
	Converter *Converter
	Resilient *ResilientSource
}

// NewStack wires provider, metrics, retries and the cache in that order.
func NewStack(cfg config.RatesConfig, kv KV, currencies domain.CurrencySet, logger *slog.Logger) *Stack {
	provider := NewYahooProvider(cfg.BaseURL, cfg.Timeout, cfg.LookbackDays, logger)
	resilient := NewResilientSource(NewInstrumentedSource(provider, yahooAPIName), cfg.RetryAttempts, cfg.BreakerTimeout)

	var rates RateSource = resilient
	if kv != nil {
		rates = NewCachedSource(resilient, kv, cfg.CacheTTL, logger)
	}

	return &Stack{
		Rates:     rates,
		Converter: NewConverter(rates, currencies),
		Resilient: resilient,
	}
}
