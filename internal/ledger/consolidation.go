package ledger

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/debtbot/internal/domain"
)

// Balance is the net position of a pair in a single currency.
// A positive Amount means Pair.Low owes Pair.High; negative means the reverse.
type Balance struct {
	Pair     domain.Pair
	Amount   decimal.Decimal
	Currency domain.Currency
}

// DebtorID returns the member who owes the balance.
func (b Balance) DebtorID() int64 {
	if b.Amount.Sign() >= 0 {
		return b.Pair.Low
	}
	return b.Pair.High
}

// CreditorID returns the member who is owed the balance.
func (b Balance) CreditorID() int64 {
	if b.Amount.Sign() >= 0 {
		return b.Pair.High
	}
	return b.Pair.Low
}

// Magnitude returns |Amount|.
func (b Balance) Magnitude() decimal.Decimal {
	return b.Amount.Abs()
}

// Consolidation is a read-only snapshot of debts restated in one currency.
type Consolidation struct {
	Currency domain.Currency
	Balances []Balance
	Failures []LegFailure
}

// Consolidator restates debts in a target currency.
type Consolidator struct {
	conv Converter
	log  *slog.Logger
}

// NewConsolidator constructs a Consolidator.
func NewConsolidator(conv Converter, log *slog.Logger) *Consolidator {
	if log == nil {
		log = slog.Default()
	}

	return &Consolidator{conv: conv, log: log}
}

// Consolidate converts every debt into target at the rate of the debt's own
// date and nets them per unordered pair. Debts whose conversion fails are
// reported in Failures and left out of the totals. Pairs that net to within
// Epsilon are omitted. Balances are sorted by pair.
func (c *Consolidator) Consolidate(ctx context.Context, debts []domain.Debt, target domain.Currency) (*Consolidation, error) {
	result := &Consolidation{Currency: target}
	totals := make(map[domain.Pair]decimal.Decimal)

	for _, debt := range debts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		amount, err := convert(ctx, c.conv, debt.Currency, target, debt.Amount, debt.CreatedAt)
		if err != nil {
			c.log.Warn("consolidation skipped debt",
				slog.Int64("debt_id", debt.ID),
				slog.String("from", debt.Currency.String()),
				slog.String("to", target.String()),
				slog.Any("error", err),
			)
			result.Failures = append(result.Failures, LegFailure{DebtID: debt.ID, Currency: debt.Currency, Err: err})
			continue
		}

		pair := debt.Pair()
		total, ok := totals[pair]
		if !ok {
			total = decimal.Zero
		}

		if debt.DebtorID < debt.CreditorID {
			total = total.Add(amount)
		} else {
			total = total.Sub(amount)
		}
		totals[pair] = total
	}

	for pair, total := range totals {
		if domain.IsSettled(total) {
			continue
		}
		result.Balances = append(result.Balances, Balance{
			Pair:     pair,
			Amount:   domain.Round(total),
			Currency: target,
		})
	}

	sort.Slice(result.Balances, func(i, j int) bool {
		return result.Balances[i].Pair.Less(result.Balances[j].Pair)
	})

	return result, nil
}
