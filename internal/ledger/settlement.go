package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/debtbot/internal/domain"
)

// Payment is money handed from DebtorID to CreditorID.
type Payment struct {
	ChatID     int64
	DebtorID   int64
	CreditorID int64
	Amount     decimal.Decimal
	Currency   domain.Currency
	// AsOf stamps the recorded transactions. Zero means now.
	AsOf time.Time
}

// LegAction is what a settlement leg did to its debt.
type LegAction string

const (
	LegDeleted LegAction = "deleted"
	LegReduced LegAction = "reduced"
)

// Leg is one debt touched by a settlement.
type Leg struct {
	DebtID       int64
	Action       LegAction
	DebtCurrency domain.Currency
	// Applied is the part of the payment consumed, in the payment currency.
	Applied decimal.Decimal
	// Left is what remains of the debt in its own currency.
	Left decimal.Decimal
}

// SettlementResult distinguishes full, partial and no allocation.
type SettlementResult struct {
	Currency domain.Currency
	// Remaining is the unallocated part of the payment; zero when fully allocated.
	Remaining decimal.Decimal
	Legs      []Leg
	Failures  []LegFailure
}

// FullyAllocated reports whether the whole payment was applied to debts.
func (r *SettlementResult) FullyAllocated() bool {
	return r != nil && r.Remaining.IsZero()
}

// Settler allocates payments over a debtor's obligations to one creditor.
type Settler struct {
	store Store
	conv  Converter
	log   *slog.Logger
	now   func() time.Time
}

// NewSettler constructs a Settler.
func NewSettler(store Store, conv Converter, log *slog.Logger) *Settler {
	if log == nil {
		log = slog.Default()
	}

	return &Settler{
		store: store,
		conv:  conv,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// legPlan returns how much to take off the debt, in its own currency, and
// how much of the payment that consumes.
type legPlan func(current *domain.Debt) (reduceBy, applied decimal.Decimal, err error)

// Settle consumes p.Amount against debts in p.Currency first, then against
// debts in other currencies converted at each debt's own date. Every leg is
// committed on its own once its conversions have succeeded. Legs whose
// conversion fails are reported in Failures and do not consume the payment.
//
// ErrDebtNotFound is returned when the debtor owes the creditor nothing.
// On a storage error the partial result committed so far is returned with it.
func (s *Settler) Settle(ctx context.Context, p Payment) (*SettlementResult, error) {
	if p.Amount.Sign() <= 0 || domain.IsSettled(domain.Round(p.Amount)) {
		return nil, ErrInvalidAmount
	}

	asOf := p.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}

	result := &SettlementResult{Currency: p.Currency}
	remaining := domain.Round(p.Amount)

	same, err := s.store.ListPairDebtsInCurrency(ctx, p.ChatID, p.DebtorID, p.CreditorID, p.Currency)
	if err != nil {
		return nil, fmt.Errorf("list same currency debts: %w", err)
	}

	for _, debt := range same {
		if domain.IsSettled(remaining) {
			break
		}

		budget := remaining
		leg, err := s.commitLeg(ctx, p, asOf, debt.ID, func(current *domain.Debt) (decimal.Decimal, decimal.Decimal, error) {
			if current.Currency != p.Currency {
				return decimal.Zero, decimal.Zero, errStaleDebt
			}
			if budget.GreaterThanOrEqual(current.Amount) {
				return current.Amount, current.Amount, nil
			}
			return budget, budget, nil
		})
		if errors.Is(err, ErrDebtNotFound) || errors.Is(err, errStaleDebt) {
			continue
		}
		if err != nil {
			result.Remaining = finalRemaining(remaining)
			return result, err
		}

		remaining = remaining.Sub(leg.Applied)
		result.Legs = append(result.Legs, leg)
	}

	if domain.IsSettled(remaining) {
		result.Remaining = finalRemaining(remaining)
		return result, nil
	}

	others, err := s.store.ListPairDebtsExcludingCurrency(ctx, p.ChatID, p.DebtorID, p.CreditorID, p.Currency)
	if err != nil {
		result.Remaining = finalRemaining(remaining)
		return result, fmt.Errorf("list other currency debts: %w", err)
	}

	if len(same) == 0 && len(others) == 0 {
		return nil, ErrDebtNotFound
	}

	for _, debt := range others {
		if domain.IsSettled(remaining) {
			break
		}

		reduceBy, applied, err := s.planCrossCurrency(ctx, debt, p.Currency, remaining)
		if err != nil {
			s.reportFailure(result, p, debt, err)
			continue
		}

		snapshot := debt
		leg, err := s.commitLeg(ctx, p, asOf, debt.ID, func(current *domain.Debt) (decimal.Decimal, decimal.Decimal, error) {
			if current.Currency != snapshot.Currency || !current.Amount.Equal(snapshot.Amount) {
				return decimal.Zero, decimal.Zero, errStaleDebt
			}
			return reduceBy, applied, nil
		})
		if errors.Is(err, ErrDebtNotFound) || errors.Is(err, errStaleDebt) {
			s.reportFailure(result, p, debt, err)
			continue
		}
		if err != nil {
			result.Remaining = finalRemaining(remaining)
			return result, err
		}

		remaining = remaining.Sub(leg.Applied)
		result.Legs = append(result.Legs, leg)
	}

	result.Remaining = finalRemaining(remaining)
	return result, nil
}

// planCrossCurrency works out a leg against a debt held in another currency.
// A debt worth no more than remaining is cleared in full. Otherwise remaining
// is converted back into the debt's currency and taken off it.
func (s *Settler) planCrossCurrency(ctx context.Context, debt domain.Debt, payCurrency domain.Currency, remaining decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	converted, err := convert(ctx, s.conv, debt.Currency, payCurrency, debt.Amount, debt.CreatedAt)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if remaining.GreaterThanOrEqual(converted) {
		return debt.Amount, converted, nil
	}

	back, err := convert(ctx, s.conv, payCurrency, debt.Currency, remaining, debt.CreatedAt)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return back, remaining, nil
}

func (s *Settler) commitLeg(ctx context.Context, p Payment, asOf time.Time, debtID int64, plan legPlan) (Leg, error) {
	var leg Leg

	err := s.store.WithinTx(ctx, func(tx DebtStore) error {
		current, err := tx.GetDebt(ctx, debtID)
		if err != nil {
			return err
		}
		if current.DebtorID != p.DebtorID || current.CreditorID != p.CreditorID {
			return errStaleDebt
		}

		reduceBy, applied, err := plan(current)
		if err != nil {
			return err
		}

		left := domain.Round(current.Amount.Sub(reduceBy))
		if domain.IsSettled(left) || left.Sign() < 0 {
			if err := tx.DeleteDebt(ctx, current.ID); err != nil {
				return fmt.Errorf("delete debt: %w", err)
			}
			left = decimal.Zero
			leg.Action = LegDeleted
			s.log.Debug("debt deleted", debtAttrs(current)...)
		} else {
			updated := *current
			updated.Amount = left
			if err := tx.UpdateDebt(ctx, &updated); err != nil {
				return fmt.Errorf("update debt: %w", err)
			}
			leg.Action = LegReduced
			s.log.Debug("debt updated", debtAttrs(&updated)...)
		}

		leg.DebtID = current.ID
		leg.DebtCurrency = current.Currency
		leg.Applied = domain.Round(applied)
		leg.Left = left

		txn := &domain.Transaction{
			ChatID:     p.ChatID,
			CreditorID: p.CreditorID,
			DebtorID:   p.DebtorID,
			Amount:     leg.Applied,
			Currency:   p.Currency,
			CreatedAt:  asOf,
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}

		return nil
	})

	return leg, err
}

func (s *Settler) reportFailure(result *SettlementResult, p Payment, debt domain.Debt, err error) {
	s.log.Warn("settlement leg skipped",
		slog.Int64("chat_id", p.ChatID),
		slog.Int64("debt_id", debt.ID),
		slog.String("debt_currency", debt.Currency.String()),
		slog.String("payment_currency", p.Currency.String()),
		slog.Any("error", err),
	)
	result.Failures = append(result.Failures, LegFailure{DebtID: debt.ID, Currency: debt.Currency, Err: err})
}

func finalRemaining(remaining decimal.Decimal) decimal.Decimal {
	if domain.IsSettled(remaining) {
		return decimal.Zero
	}
	return domain.Round(remaining)
}
