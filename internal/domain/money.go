// Package domain holds the entities shared by the ledger, its storage and the bot.
package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places every stored amount is rounded to.
const AmountPlaces = 3

// Epsilon is the magnitude at or below which a balance counts as settled.
var Epsilon = decimal.New(1, -AmountPlaces)

// Round rounds an amount to AmountPlaces, half away from zero.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(AmountPlaces)
}

// IsSettled reports whether |amount| is within Epsilon of zero.
func IsSettled(amount decimal.Decimal) bool {
	return amount.Abs().LessThanOrEqual(Epsilon)
}

// Currency is an ISO 4217 code.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	RUB Currency = "RUB"
)

// DefaultCurrencies is the whitelist used when configuration does not override it.
var DefaultCurrencies = []Currency{USD, EUR, RUB}

func (c Currency) String() string {
	return string(c)
}

// CurrencySet is a whitelist of currencies accepted by the ledger.
type CurrencySet []Currency

// NewCurrencySet normalizes codes and drops duplicates.
func NewCurrencySet(codes []string) CurrencySet {
	seen := make(map[Currency]struct{}, len(codes))
	set := make(CurrencySet, 0, len(codes))
	for _, code := range codes {
		cur := Currency(strings.ToUpper(strings.TrimSpace(code)))
		if cur == "" {
			continue
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		set = append(set, cur)
	}

	if len(set) == 0 {
		return append(CurrencySet(nil), DefaultCurrencies...)
	}

	return set
}

// Parse returns the currency for code if it is part of the set.
func (s CurrencySet) Parse(code string) (Currency, error) {
	cur := Currency(strings.ToUpper(strings.TrimSpace(code)))
	for _, allowed := range s {
		if allowed == cur {
			return cur, nil
		}
	}

	return "", fmt.Errorf("unsupported currency %q", code)
}

// Contains reports whether cur is whitelisted.
func (s CurrencySet) Contains(cur Currency) bool {
	for _, allowed := range s {
		if allowed == cur {
			return true
		}
	}
	return false
}
