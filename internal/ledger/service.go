package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/pkg/metrics"
)

// Option customises a Service.
type Option func(*Service)

// WithLocker replaces the default process-local locker.
func WithLocker(locker Locker) Option {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithClock overrides the time source used to stamp debts and payments.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.netter.now = now
			s.settler.now = now
		}
	}
}

// Service is the entry point for presentation code. Every mutating call
// holds the chat lock for its whole duration.
type Service struct {
	store        Store
	locker       Locker
	netter       *Netter
	settler      *Settler
	consolidator *Consolidator
	log          *slog.Logger
}

// NewService wires the ledger engines around store and conv.
func NewService(store Store, conv Converter, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "ledger"))

	s := &Service{
		store:        store,
		locker:       NewMemoryLocker(),
		netter:       NewNetter(store, conv, log),
		settler:      NewSettler(store, conv, log),
		consolidator: NewConsolidator(conv, log),
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// LockKey returns the serialization key for a chat.
func LockKey(chatID int64) string {
	return fmt.Sprintf("ledger:chat:%d", chatID)
}

// MergeObligation records that ob.DebtorID owes ob.CreditorID.
func (s *Service) MergeObligation(ctx context.Context, ob Obligation) (*MergeResult, error) {
	var res *MergeResult
	err := s.withChatLock(ctx, ob.ChatID, "merge", func(ctx context.Context) error {
		var err error
		res, err = s.netter.MergeObligation(ctx, ob)
		return err
	})
	return res, err
}

// SplitExpense divides exp.Total equally and merges each share.
func (s *Service) SplitExpense(ctx context.Context, exp Expense) ([]MergeResult, error) {
	var res []MergeResult
	err := s.withChatLock(ctx, exp.ChatID, "split", func(ctx context.Context) error {
		var err error
		res, err = s.netter.SplitExpense(ctx, exp)
		return err
	})
	return res, err
}

// Settle allocates a payment.
func (s *Service) Settle(ctx context.Context, p Payment) (*SettlementResult, error) {
	var res *SettlementResult
	err := s.withChatLock(ctx, p.ChatID, "settle", func(ctx context.Context) error {
		var err error
		res, err = s.settler.Settle(ctx, p)
		return err
	})

	if res != nil {
		metrics.RecordSettlementRemainder(p.Currency.String(), res.Remaining.InexactFloat64())
		for _, f := range res.Failures {
			metrics.RecordConversionFailure("settle", f.Currency.String())
		}
	}

	return res, err
}

// Consolidate restates debts in target. It never mutates the ledger.
func (s *Service) Consolidate(ctx context.Context, debts []domain.Debt, target domain.Currency) (*Consolidation, error) {
	res, err := s.consolidator.Consolidate(ctx, debts, target)
	metrics.RecordLedgerOperation("consolidate", outcome(err))
	if res != nil {
		for _, f := range res.Failures {
			metrics.RecordConversionFailure("consolidate", f.Currency.String())
		}
	}
	return res, err
}

// ChatDebts lists every outstanding debt of a chat.
func (s *Service) ChatDebts(ctx context.Context, chatID int64) ([]domain.Debt, error) {
	return s.store.ListChatDebts(ctx, chatID)
}

// DebtsOwedTo lists the debts in which userID is the creditor.
func (s *Service) DebtsOwedTo(ctx context.Context, chatID, userID int64) ([]domain.Debt, error) {
	return s.store.ListCreditorDebts(ctx, chatID, userID)
}

// DebtsOwedBy lists the debts in which userID is the debtor.
func (s *Service) DebtsOwedBy(ctx context.Context, chatID, userID int64) ([]domain.Debt, error) {
	return s.store.ListDebtorDebts(ctx, chatID, userID)
}

// PairDebts lists what debtorID owes creditorID.
func (s *Service) PairDebts(ctx context.Context, chatID, debtorID, creditorID int64) ([]domain.Debt, error) {
	return s.store.ListPairDebts(ctx, chatID, debtorID, creditorID)
}

func (s *Service) withChatLock(ctx context.Context, chatID int64, op string, fn func(context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, LockKey(chatID))
	if err != nil {
		metrics.RecordLedgerOperation(op, "lock_failed")
		return fmt.Errorf("lock chat %d: %w", chatID, err)
	}
	defer unlock()

	err = fn(ctx)
	metrics.RecordLedgerOperation(op, outcome(err))
	if errors.Is(err, ErrConversion) {
		metrics.RecordConversionFailure(op, "")
	}

	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConversion):
		return "conversion_failed"
	case errors.Is(err, ErrDebtNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNoParticipants):
		return "invalid"
	default:
		return "error"
	}
}
