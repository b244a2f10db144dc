package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/ledger"
)

var debtRowColumns = []string{"id", "chat_id", "creditor_id", "debtor_id", "amount", "currency", "description", "created_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgresStore(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestPostgresStore_WithinTxCommitsAndLocks(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, chat_id, .* FROM debts\s+WHERE chat_id = \$1 .* LIMIT 1 FOR UPDATE`).
		WithArgs(int64(5), int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows(debtRowColumns).
			AddRow(int64(9), int64(5), int64(1), int64(2), "12.500", "USD", "pizza", created))
	mock.ExpectExec(`UPDATE debts SET amount = \$2, creditor_id = \$3, debtor_id = \$4 WHERE id = \$1`).
		WithArgs(int64(9), sqlmock.AnyArg(), int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(ctx, func(tx ledger.DebtStore) error {
		debt, err := tx.FindPairDebt(ctx, 5, 1, 2)
		if err != nil {
			return err
		}
		assert.True(t, debt.Amount.Equal(decimal.RequireFromString("12.5")))
		assert.Equal(t, domain.USD, debt.Currency)
		debt.Amount = decimal.NewFromInt(20)
		return tx.UpdateDebt(ctx, debt)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithinTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM debts WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx ledger.DebtStore) error {
		if err := tx.DeleteDebt(context.Background(), 3); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, chat_id, .* FROM debts WHERE id = \$1$`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(debtRowColumns))
	mock.ExpectExec(`DELETE FROM debts`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.GetDebt(ctx, 4)
	assert.ErrorIs(t, err, ledger.ErrDebtNotFound)
	assert.ErrorIs(t, store.DeleteDebt(ctx, 4), ledger.ErrDebtNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPairDebtsInCurrency(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM debts WHERE chat_id = \$1 AND debtor_id = \$2 AND creditor_id = \$3 AND currency = \$4 ORDER BY created_at, id`).
		WithArgs(int64(5), int64(2), int64(1), "EUR").
		WillReturnRows(sqlmock.NewRows(debtRowColumns).
			AddRow(int64(1), int64(5), int64(1), int64(2), "3.000", "EUR", "", created).
			AddRow(int64(2), int64(5), int64(1), int64(2), "4.250", "EUR", "", created.Add(time.Hour)))

	debts, err := store.ListPairDebtsInCurrency(context.Background(), 5, 2, 1, domain.EUR)
	require.NoError(t, err)
	require.Len(t, debts, 2)
	assert.True(t, debts[1].Amount.Equal(decimal.RequireFromString("4.25")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RegisterUserDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(int64(10), int64(1), "alice", "+100", "Monzo").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := store.RegisterUser(context.Background(), &domain.User{ID: 10, ChatID: 1, Username: "alice", Phone: "+100", PreferredBank: "Monzo"})
	assert.ErrorIs(t, err, ledger.ErrUserExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO transactions`).
		WithArgs(int64(1), int64(2), int64(3), sqlmock.AnyArg(), "RUB", at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(77)))

	txn := &domain.Transaction{ChatID: 1, CreditorID: 2, DebtorID: 3, Amount: decimal.NewFromInt(100), Currency: domain.RUB, CreatedAt: at}
	require.NoError(t, store.AppendTransaction(context.Background(), txn))
	assert.Equal(t, int64(77), txn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
