package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/ledger"
)

const uniqueViolation = "23505"

const debtColumns = `id, chat_id, creditor_id, debtor_id, amount, currency, description, created_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements ledger.Store on top of lib/pq.
type PostgresStore struct {
	*pgDebts
	db *sql.DB
}

var _ ledger.Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}

	return &PostgresStore{
		pgDebts: &pgDebts{q: db, log: log},
		db:      db,
	}
}

// WithinTx runs fn in a READ COMMITTED transaction. Debt lookups made
// through tx take row locks that are held until commit.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx ledger.DebtStore) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&pgDebts{q: tx, log: s.log, forUpdate: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("rollback failed", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (s *PostgresStore) RegisterChat(ctx context.Context, chatID int64) error {
	const query = `INSERT INTO chats (id, language) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, chatID, domain.DefaultLanguage); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	const query = `SELECT id, language, created_at FROM chats WHERE id = $1`

	var chat domain.Chat
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&chat.ID, &chat.Language, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select chat: %w", err)
	}
	return &chat, nil
}

func (s *PostgresStore) SetChatLanguage(ctx context.Context, chatID int64, language string) error {
	const query = `UPDATE chats SET language = $2 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, chatID, language)
	if err != nil {
		return fmt.Errorf("update chat language: %w", err)
	}
	return expectOneRow(res, ledger.ErrChatNotFound)
}

func (s *PostgresStore) RegisterUser(ctx context.Context, user *domain.User) error {
	const query = `
		INSERT INTO users (user_id, chat_id, username, phone_number, preferred_bank)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		user.ID, user.ChatID, user.Username, user.Phone, user.PreferredBank,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ledger.ErrUserExists
		}
		s.log.Error("failed to register user", slog.Int64("chat_id", user.ChatID), slog.Int64("user_id", user.ID), slog.Any("error", err))
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, chatID, userID int64) (*domain.User, error) {
	const query = `
		SELECT user_id, chat_id, username, phone_number, preferred_bank, created_at
		FROM users WHERE chat_id = $1 AND user_id = $2
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, chatID, userID))
}

func (s *PostgresStore) FindUserByUsername(ctx context.Context, chatID int64, username string) (*domain.User, error) {
	const query = `
		SELECT user_id, chat_id, username, phone_number, preferred_bank, created_at
		FROM users WHERE chat_id = $1 AND LOWER(username) = LOWER($2)
		LIMIT 1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, chatID, strings.TrimPrefix(username, "@")))
}

func (s *PostgresStore) ListChatUsers(ctx context.Context, chatID int64) ([]domain.User, error) {
	const query = `
		SELECT user_id, chat_id, username, phone_number, preferred_bank, created_at
		FROM users WHERE chat_id = $1
		ORDER BY created_at, user_id
	`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("select chat users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.ChatID, &u.Username, &u.Phone, &u.PreferredBank, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.ChatID, &u.Username, &u.Phone, &u.PreferredBank, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// pgDebts implements ledger.DebtStore for a database handle or a transaction.
type pgDebts struct {
	q         queryer
	log       *slog.Logger
	forUpdate bool
}

func (d *pgDebts) lockClause() string {
	if d.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (d *pgDebts) FindPairDebt(ctx context.Context, chatID, a, b int64) (*domain.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts
		WHERE chat_id = $1
		  AND ((creditor_id = $2 AND debtor_id = $3) OR (creditor_id = $3 AND debtor_id = $2))
		ORDER BY created_at, id
		LIMIT 1` + d.lockClause()

	return d.scanDebt(d.q.QueryRowContext(ctx, query, chatID, a, b))
}

func (d *pgDebts) GetDebt(ctx context.Context, debtID int64) (*domain.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE id = $1` + d.lockClause()

	return d.scanDebt(d.q.QueryRowContext(ctx, query, debtID))
}

func (d *pgDebts) InsertDebt(ctx context.Context, debt *domain.Debt) error {
	const query = `
		INSERT INTO debts (chat_id, creditor_id, debtor_id, amount, currency, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING id, created_at
	`

	var createdAt sql.NullTime
	if !debt.CreatedAt.IsZero() {
		createdAt = sql.NullTime{Time: debt.CreatedAt, Valid: true}
	}

	err := d.q.QueryRowContext(ctx, query,
		debt.ChatID, debt.CreditorID, debt.DebtorID, debt.Amount, string(debt.Currency), debt.Description, createdAt,
	).Scan(&debt.ID, &debt.CreatedAt)
	if err != nil {
		d.log.Error("failed to insert debt", slog.Int64("chat_id", debt.ChatID), slog.Any("error", err))
		return fmt.Errorf("insert debt: %w", err)
	}
	return nil
}

func (d *pgDebts) UpdateDebt(ctx context.Context, debt *domain.Debt) error {
	const query = `UPDATE debts SET amount = $2, creditor_id = $3, debtor_id = $4 WHERE id = $1`

	res, err := d.q.ExecContext(ctx, query, debt.ID, debt.Amount, debt.CreditorID, debt.DebtorID)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	return expectOneRow(res, ledger.ErrDebtNotFound)
}

func (d *pgDebts) DeleteDebt(ctx context.Context, debtID int64) error {
	res, err := d.q.ExecContext(ctx, `DELETE FROM debts WHERE id = $1`, debtID)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	return expectOneRow(res, ledger.ErrDebtNotFound)
}

func (d *pgDebts) ListChatDebts(ctx context.Context, chatID int64) ([]domain.Debt, error) {
	return d.listDebts(ctx, `chat_id = $1`, chatID)
}

func (d *pgDebts) ListDebtorDebts(ctx context.Context, chatID, debtorID int64) ([]domain.Debt, error) {
	return d.listDebts(ctx, `chat_id = $1 AND debtor_id = $2`, chatID, debtorID)
}

func (d *pgDebts) ListCreditorDebts(ctx context.Context, chatID, creditorID int64) ([]domain.Debt, error) {
	return d.listDebts(ctx, `chat_id = $1 AND creditor_id = $2`, chatID, creditorID)
}

func (d *pgDebts) ListPairDebts(ctx context.Context, chatID, debtorID, creditorID int64) ([]domain.Debt, error) {
	return d.listDebts(ctx, `chat_id = $1 AND debtor_id = $2 AND creditor_id = $3`, chatID, debtorID, creditorID)
}

func (d *pgDebts) ListPairDebtsInCurrency(ctx context.Context, chatID, debtorID, creditorID int64, currency domain.Currency) ([]domain.Debt, error) {
	return d.listDebts(ctx, `chat_id = $1 AND debtor_id = $2 AND creditor_id = $3 AND currency = $4`,
		chatID, debtorID, creditorID, string(currency))
}

func (d *pgDebts) ListPairDebtsExcludingCurrency(ctx context.Context, chatID, debtorID, creditorID int64, currency domain.Currency) ([]domain.Debt, error) {
	return d.listDebts(ctx, `chat_id = $1 AND debtor_id = $2 AND creditor_id = $3 AND currency <> $4`,
		chatID, debtorID, creditorID, string(currency))
}

func (d *pgDebts) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	const query = `
		INSERT INTO transactions (chat_id, creditor_id, debtor_id, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := d.q.QueryRowContext(ctx, query,
		txn.ChatID, txn.CreditorID, txn.DebtorID, txn.Amount, string(txn.Currency), txn.CreatedAt,
	).Scan(&txn.ID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (d *pgDebts) listDebts(ctx context.Context, where string, args ...any) ([]domain.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE ` + where + ` ORDER BY created_at, id`

	rows, err := d.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select debts: %w", err)
	}
	defer rows.Close()

	debts := []domain.Debt{}
	for rows.Next() {
		debt, err := scanDebtRow(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, *debt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debts: %w", err)
	}
	return debts, nil
}

func (d *pgDebts) scanDebt(row *sql.Row) (*domain.Debt, error) {
	debt, err := scanDebtRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrDebtNotFound
	}
	return debt, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDebtRow(row scanner) (*domain.Debt, error) {
	var (
		debt     domain.Debt
		currency string
	)
	err := row.Scan(
		&debt.ID,
		&debt.ChatID,
		&debt.CreditorID,
		&debt.DebtorID,
		&debt.Amount,
		&currency,
		&debt.Description,
		&debt.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan debt: %w", err)
	}
	debt.Currency = domain.Currency(strings.TrimSpace(currency))
	return &debt, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
