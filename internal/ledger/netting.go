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

const maxMergeAttempts = 3

// ErrNoParticipants is returned when an expense has nobody to split it between.
var ErrNoParticipants = errors.New("expense has no participants")

// Obligation states that DebtorID owes CreditorID Amount in Currency.
type Obligation struct {
	ChatID      int64
	CreditorID  int64
	DebtorID    int64
	Amount      decimal.Decimal
	Currency    domain.Currency
	Description string
}

// MergeOutcome tells the caller which write a merge performed.
type MergeOutcome string

const (
	MergeSkipped  MergeOutcome = "skipped"
	MergeInserted MergeOutcome = "inserted"
	MergeUpdated  MergeOutcome = "updated"
	MergeDeleted  MergeOutcome = "deleted"
)

// MergeResult is the pair balance after a merge. Debt is nil when the
// obligation was skipped or netted the balance to zero.
type MergeResult struct {
	Outcome MergeOutcome
	Debt    *domain.Debt
}

// Netter folds new obligations into the single debt kept per pair of members.
type Netter struct {
	store Store
	conv  Converter
	log   *slog.Logger
	now   func() time.Time
}

// NewNetter constructs a Netter.
func NewNetter(store Store, conv Converter, log *slog.Logger) *Netter {
	if log == nil {
		log = slog.Default()
	}

	return &Netter{
		store: store,
		conv:  conv,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// MergeObligation nets ob against the existing pair balance.
//
// When the existing debt is held in another currency, ob.Amount is
// converted into it at today's rate before anything is written. A failed
// conversion returns a *ConversionError and leaves the ledger untouched.
func (n *Netter) MergeObligation(ctx context.Context, ob Obligation) (*MergeResult, error) {
	if ob.CreditorID == ob.DebtorID {
		return &MergeResult{Outcome: MergeSkipped}, nil
	}
	if ob.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	for attempt := 1; ; attempt++ {
		snapshot, err := n.store.FindPairDebt(ctx, ob.ChatID, ob.CreditorID, ob.DebtorID)
		switch {
		case errors.Is(err, ErrDebtNotFound):
			snapshot = nil
		case err != nil:
			return nil, fmt.Errorf("find pair debt: %w", err)
		}

		amount := domain.Round(ob.Amount)
		if snapshot != nil && snapshot.Currency != ob.Currency {
			amount, err = convert(ctx, n.conv, ob.Currency, snapshot.Currency, ob.Amount, n.now())
			if err != nil {
				n.log.Warn("obligation conversion failed",
					slog.Int64("chat_id", ob.ChatID),
					slog.Int64("creditor_id", ob.CreditorID),
					slog.Int64("debtor_id", ob.DebtorID),
					slog.String("from", ob.Currency.String()),
					slog.String("to", snapshot.Currency.String()),
					slog.Any("error", err),
				)
				return nil, err
			}
		}

		// Rounded to nothing: there is no balance to store or net.
		if domain.IsSettled(amount) {
			return &MergeResult{Outcome: MergeSkipped}, nil
		}

		result, err := n.apply(ctx, ob, snapshot, amount)
		if errors.Is(err, errStaleDebt) && attempt < maxMergeAttempts {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("merge obligation: %w", err)
		}

		return result, nil
	}
}

func (n *Netter) apply(ctx context.Context, ob Obligation, snapshot *domain.Debt, amount decimal.Decimal) (*MergeResult, error) {
	var result *MergeResult

	err := n.store.WithinTx(ctx, func(tx DebtStore) error {
		current, err := tx.FindPairDebt(ctx, ob.ChatID, ob.CreditorID, ob.DebtorID)
		switch {
		case errors.Is(err, ErrDebtNotFound):
			current = nil
		case err != nil:
			return fmt.Errorf("lock pair debt: %w", err)
		}

		if !sameDebt(snapshot, current) {
			return errStaleDebt
		}

		if current == nil {
			if domain.IsSettled(amount) {
				result = &MergeResult{Outcome: MergeSkipped}
				return nil
			}

			debt := &domain.Debt{
				ChatID:      ob.ChatID,
				CreditorID:  ob.CreditorID,
				DebtorID:    ob.DebtorID,
				Amount:      amount,
				Currency:    ob.Currency,
				Description: ob.Description,
				CreatedAt:   n.now(),
			}
			if err := tx.InsertDebt(ctx, debt); err != nil {
				return fmt.Errorf("insert debt: %w", err)
			}

			n.log.Debug("debt inserted", debtAttrs(debt)...)
			result = &MergeResult{Outcome: MergeInserted, Debt: debt}
			return nil
		}

		delta := current.Amount.Sub(amount)
		if current.CreditorID == ob.CreditorID {
			delta = current.Amount.Add(amount)
		}

		if domain.IsSettled(delta) {
			if err := tx.DeleteDebt(ctx, current.ID); err != nil {
				return fmt.Errorf("delete debt: %w", err)
			}

			n.log.Debug("debt deleted", debtAttrs(current)...)
			result = &MergeResult{Outcome: MergeDeleted}
			return nil
		}

		updated := *current
		updated.Amount = domain.Round(delta.Abs())
		if delta.Sign() < 0 {
			updated.CreditorID, updated.DebtorID = current.DebtorID, current.CreditorID
		}

		if err := tx.UpdateDebt(ctx, &updated); err != nil {
			return fmt.Errorf("update debt: %w", err)
		}

		n.log.Debug("debt updated", debtAttrs(&updated)...)
		result = &MergeResult{Outcome: MergeUpdated, Debt: &updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Expense is a payment by CreditorID shared equally by DebtorIDs.
type Expense struct {
	ChatID      int64
	CreditorID  int64
	DebtorIDs   []int64
	Total       decimal.Decimal
	Currency    domain.Currency
	Description string
}

// SplitExpense merges one equal share per participant. The payer's own
// share, if listed, is dropped by the self-debt rule. Merges are applied in
// order and stop at the first error; the results applied so far are returned
// alongside it.
func (n *Netter) SplitExpense(ctx context.Context, exp Expense) ([]MergeResult, error) {
	participants := uniqueIDs(exp.DebtorIDs)
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	if exp.Total.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	share := exp.Total.Div(decimal.NewFromInt(int64(len(participants))))
	if domain.IsSettled(domain.Round(share)) {
		return nil, ErrInvalidAmount
	}

	results := make([]MergeResult, 0, len(participants))
	for _, debtorID := range participants {
		res, err := n.MergeObligation(ctx, Obligation{
			ChatID:      exp.ChatID,
			CreditorID:  exp.CreditorID,
			DebtorID:    debtorID,
			Amount:      share,
			Currency:    exp.Currency,
			Description: exp.Description,
		})
		if err != nil {
			return results, fmt.Errorf("split share for %d: %w", debtorID, err)
		}
		results = append(results, *res)
	}

	return results, nil
}

func sameDebt(a, b *domain.Debt) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && a.Currency == b.Currency
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func debtAttrs(d *domain.Debt) []any {
	return []any{
		slog.Int64("debt_id", d.ID),
		slog.Int64("chat_id", d.ChatID),
		slog.Int64("creditor_id", d.CreditorID),
		slog.Int64("debtor_id", d.DebtorID),
		slog.String("amount", d.Amount.String()),
		slog.String("currency", d.Currency.String()),
	}
}
