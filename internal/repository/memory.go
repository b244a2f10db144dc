package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/ledger"
)

type memberKey struct {
	chatID int64
	userID int64
}

// MemoryStore is an in-process ledger.Store used by tests and local runs.
// WithinTx works on a copy and swaps it in only on success.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
	now  func() time.Time
}

var _ ledger.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	now := func() time.Time { return time.Now().UTC() }
	return &MemoryStore{data: newMemoryData(now), now: now}
}

// Transactions returns the recorded payment legs of a chat.
func (s *MemoryStore) Transactions(chatID int64) []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Transaction
	for _, txn := range s.data.txns {
		if txn.ChatID == chatID {
			out = append(out, txn)
		}
	}
	return out
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx ledger.DebtStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.data = work

	return nil
}

func (s *MemoryStore) FindPairDebt(ctx context.Context, chatID, a, b int64) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindPairDebt(ctx, chatID, a, b)
}

func (s *MemoryStore) GetDebt(ctx context.Context, debtID int64) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetDebt(ctx, debtID)
}

func (s *MemoryStore) InsertDebt(ctx context.Context, debt *domain.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertDebt(ctx, debt)
}

func (s *MemoryStore) UpdateDebt(ctx context.Context, debt *domain.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateDebt(ctx, debt)
}

func (s *MemoryStore) DeleteDebt(ctx context.Context, debtID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteDebt(ctx, debtID)
}

func (s *MemoryStore) ListChatDebts(ctx context.Context, chatID int64) ([]domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListChatDebts(ctx, chatID)
}

func (s *MemoryStore) ListDebtorDebts(ctx context.Context, chatID, debtorID int64) ([]domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListDebtorDebts(ctx, chatID, debtorID)
}

func (s *MemoryStore) ListCreditorDebts(ctx context.Context, chatID, creditorID int64) ([]domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListCreditorDebts(ctx, chatID, creditorID)
}

func (s *MemoryStore) ListPairDebts(ctx context.Context, chatID, debtorID, creditorID int64) ([]domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListPairDebts(ctx, chatID, debtorID, creditorID)
}

func (s *MemoryStore) ListPairDebtsInCurrency(ctx context.Context, chatID, debtorID, creditorID int64, currency domain.Currency) ([]domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListPairDebtsInCurrency(ctx, chatID, debtorID, creditorID, currency)
}

func (s *MemoryStore) ListPairDebtsExcludingCurrency(ctx context.Context, chatID, debtorID, creditorID int64, currency domain.Currency) ([]domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListPairDebtsExcludingCurrency(ctx, chatID, debtorID, creditorID, currency)
}

func (s *MemoryStore) AppendTransaction(ctx context.Context, txn *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AppendTransaction(ctx, txn)
}

func (s *MemoryStore) RegisterChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.chats[chatID]; !ok {
		s.data.chats[chatID] = domain.Chat{ID: chatID, Language: domain.DefaultLanguage, CreatedAt: s.now()}
	}
	return nil
}

func (s *MemoryStore) GetChat(_ context.Context, chatID int64) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.data.chats[chatID]
	if !ok {
		return nil, ledger.ErrChatNotFound
	}
	return &chat, nil
}

func (s *MemoryStore) SetChatLanguage(_ context.Context, chatID int64, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.data.chats[chatID]
	if !ok {
		return ledger.ErrChatNotFound
	}
	chat.Language = language
	s.data.chats[chatID] = chat
	return nil
}

func (s *MemoryStore) RegisterUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{chatID: user.ChatID, userID: user.ID}
	if _, ok := s.data.users[key]; ok {
		return ledger.ErrUserExists
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.data.users[key] = *user
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, chatID, userID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.users[memberKey{chatID: chatID, userID: userID}]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return &user, nil
}

func (s *MemoryStore) FindUserByUsername(_ context.Context, chatID int64, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.TrimPrefix(username, "@")
	for key, user := range s.data.users {
		if key.chatID == chatID && strings.EqualFold(user.Username, username) {
			found := user
			return &found, nil
		}
	}
	return nil, ledger.ErrUserNotFound
}

func (s *MemoryStore) ListChatUsers(_ context.Context, chatID int64) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := []domain.User{}
	for key, user := range s.data.users {
		if key.chatID == chatID {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// memoryData is the unlocked state behind MemoryStore. It doubles as the
// ledger.DebtStore handed to WithinTx callbacks.
type memoryData struct {
	chats      map[int64]domain.Chat
	users      map[memberKey]domain.User
	debts      map[int64]domain.Debt
	txns       []domain.Transaction
	nextDebtID int64
	nextTxnID  int64
	now        func() time.Time
}

func newMemoryData(now func() time.Time) *memoryData {
	return &memoryData{
		chats: make(map[int64]domain.Chat),
		users: make(map[memberKey]domain.User),
		debts: make(map[int64]domain.Debt),
		now:   now,
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData(d.now)
	for k, v := range d.chats {
		c.chats[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.debts {
		c.debts[k] = v
	}
	c.txns = append([]domain.Transaction(nil), d.txns...)
	c.nextDebtID = d.nextDebtID
	c.nextTxnID = d.nextTxnID
	return c
}

func (d *memoryData) FindPairDebt(_ context.Context, chatID, a, b int64) (*domain.Debt, error) {
	matches := d.filter(func(debt domain.Debt) bool {
		return debt.ChatID == chatID &&
			((debt.CreditorID == a && debt.DebtorID == b) || (debt.CreditorID == b && debt.DebtorID == a))
	})
	if len(matches) == 0 {
		return nil, ledger.ErrDebtNotFound
	}
	return &matches[0], nil
}

func (d *memoryData) GetDebt(_ context.Context, debtID int64) (*domain.Debt, error) {
	debt, ok := d.debts[debtID]
	if !ok {
		return nil, ledger.ErrDebtNotFound
	}
	return &debt, nil
}

func (d *memoryData) InsertDebt(_ context.Context, debt *domain.Debt) error {
	d.nextDebtID++
	debt.ID = d.nextDebtID
	if debt.CreatedAt.IsZero() {
		debt.CreatedAt = d.now()
	}
	d.debts[debt.ID] = *debt
	return nil
}

func (d *memoryData) UpdateDebt(_ context.Context, debt *domain.Debt) error {
	stored, ok := d.debts[debt.ID]
	if !ok {
		return ledger.ErrDebtNotFound
	}
	stored.Amount = debt.Amount
	stored.CreditorID = debt.CreditorID
	stored.DebtorID = debt.DebtorID
	d.debts[debt.ID] = stored
	return nil
}

func (d *memoryData) DeleteDebt(_ context.Context, debtID int64) error {
	if _, ok := d.debts[debtID]; !ok {
		return ledger.ErrDebtNotFound
	}
	delete(d.debts, debtID)
	return nil
}

func (d *memoryData) ListChatDebts(_ context.Context, chatID int64) ([]domain.Debt, error) {
	return d.filter(func(debt domain.Debt) bool { return debt.ChatID == chatID }), nil
}

func (d *memoryData) ListDebtorDebts(_ context.Context, chatID, debtorID int64) ([]domain.Debt, error) {
	return d.filter(func(debt domain.Debt) bool {
		return debt.ChatID == chatID && debt.DebtorID == debtorID
	}), nil
}

func (d *memoryData) ListCreditorDebts(_ context.Context, chatID, creditorID int64) ([]domain.Debt, error) {
	return d.filter(func(debt domain.Debt) bool {
		return debt.ChatID == chatID && debt.CreditorID == creditorID
	}), nil
}

func (d *memoryData) ListPairDebts(_ context.Context, chatID, debtorID, creditorID int64) ([]domain.Debt, error) {
	return d.filter(func(debt domain.Debt) bool {
		return debt.ChatID == chatID && debt.DebtorID == debtorID && debt.CreditorID == creditorID
	}), nil
}

func (d *memoryData) ListPairDebtsInCurrency(_ context.Context, chatID, debtorID, creditorID int64, currency domain.Currency) ([]domain.Debt, error) {
	return d.filter(func(debt domain.Debt) bool {
		return debt.ChatID == chatID && debt.DebtorID == debtorID && debt.CreditorID == creditorID &&
			debt.Currency == currency
	}), nil
}

func (d *memoryData) ListPairDebtsExcludingCurrency(_ context.Context, chatID, debtorID, creditorID int64, currency domain.Currency) ([]domain.Debt, error) {
	return d.filter(func(debt domain.Debt) bool {
		return debt.ChatID == chatID && debt.DebtorID == debtorID && debt.CreditorID == creditorID &&
			debt.Currency != currency
	}), nil
}

func (d *memoryData) AppendTransaction(_ context.Context, txn *domain.Transaction) error {
	d.nextTxnID++
	txn.ID = d.nextTxnID
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = d.now()
	}
	d.txns = append(d.txns, *txn)
	return nil
}

func (d *memoryData) filter(keep func(domain.Debt) bool) []domain.Debt {
	out := []domain.Debt{}
	for _, debt := range d.debts {
		if keep(debt) {
			out = append(out, debt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
