// Package ledger implements debt netting, multi-currency consolidation and
// payment settlement on top of a transactional Store.
package ledger

import (
	"context"

	"github.com/Proton-105/debtbot/internal/domain"
)

// DebtStore is the set of debt and transaction operations available both
// on the root Store and inside WithinTx.
//
// Finders return ErrDebtNotFound when nothing matches. List operations
// return an empty slice instead. Lists are ordered by creation time, then id.
type DebtStore interface {
	// FindPairDebt returns the debt between a and b in either direction.
	// Inside a transaction the row is locked until commit.
	FindPairDebt(ctx context.Context, chatID, a, b int64) (*domain.Debt, error)
	// GetDebt returns a debt by id, locking it inside a transaction.
	GetDebt(ctx context.Context, debtID int64) (*domain.Debt, error)
	// InsertDebt persists a new debt and assigns its ID.
	InsertDebt(ctx context.Context, debt *domain.Debt) error
	// UpdateDebt rewrites amount, creditor and debtor of an existing debt.
	UpdateDebt(ctx context.Context, debt *domain.Debt) error
	DeleteDebt(ctx context.Context, debtID int64) error

	ListChatDebts(ctx context.Context, chatID int64) ([]domain.Debt, error)
	ListDebtorDebts(ctx context.Context, chatID, debtorID int64) ([]domain.Debt, error)
	ListCreditorDebts(ctx context.Context, chatID, creditorID int64) ([]domain.Debt, error)
	// ListPairDebts returns debts owed by debtorID to creditorID.
	ListPairDebts(ctx context.Context, chatID, debtorID, creditorID int64) ([]domain.Debt, error)
	ListPairDebtsInCurrency(ctx context.Context, chatID, debtorID, creditorID int64, currency domain.Currency) ([]domain.Debt, error)
	ListPairDebtsExcludingCurrency(ctx context.Context, chatID, debtorID, creditorID int64, currency domain.Currency) ([]domain.Debt, error)

	// AppendTransaction records a completed payment leg and assigns its ID.
	AppendTransaction(ctx context.Context, txn *domain.Transaction) error
}

// Registry holds chats and their registered members.
type Registry interface {
	// RegisterChat creates the chat if it does not exist yet.
	RegisterChat(ctx context.Context, chatID int64) error
	GetChat(ctx context.Context, chatID int64) (*domain.Chat, error)
	SetChatLanguage(ctx context.Context, chatID int64, language string) error

	RegisterUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, chatID, userID int64) (*domain.User, error)
	FindUserByUsername(ctx context.Context, chatID int64, username string) (*domain.User, error)
	ListChatUsers(ctx context.Context, chatID int64) ([]domain.User, error)
}

// Store is the persistent owner of ledger state.
type Store interface {
	DebtStore
	Registry

	// WithinTx runs fn atomically. Returning an error rolls back every
	// write made through tx.
	WithinTx(ctx context.Context, fn func(tx DebtStore) error) error
}
