package handlers

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/keyboard"
	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/i18n"
	"github.com/Proton-105/debtbot/internal/ledger"
	"github.com/Proton-105/debtbot/internal/state"
)

// Ledger is the part of ledger.Service the handlers drive.
type Ledger interface {
	SplitExpense(ctx context.Context, exp ledger.Expense) ([]ledger.MergeResult, error)
	Settle(ctx context.Context, p ledger.Payment) (*ledger.SettlementResult, error)
	Consolidate(ctx context.Context, debts []domain.Debt, target domain.Currency) (*ledger.Consolidation, error)
	ChatDebts(ctx context.Context, chatID int64) ([]domain.Debt, error)
	DebtsOwedTo(ctx context.Context, chatID, userID int64) ([]domain.Debt, error)
	DebtsOwedBy(ctx context.Context, chatID, userID int64) ([]domain.Debt, error)
	PairDebts(ctx context.Context, chatID, debtorID, creditorID int64) ([]domain.Debt, error)
}

// Notifier delivers private messages. *telebot.Bot satisfies it.
type Notifier interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Ledger     Ledger
	Registry   ledger.Registry
	FSM        state.StateMachine
	Keyboard   *keyboard.Builder
	Locales    *Localizer
	Currencies domain.CurrencySet
	Notifier   Notifier
	Log        *slog.Logger
}

// Set exposes the bot's commands, callbacks and conversation steps.
type Set struct {
	Deps
}

// NewSet validates deps and fills optional ones.
func NewSet(deps Deps) *Set {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Keyboard == nil {
		deps.Keyboard = keyboard.NewBuilder(deps.Log)
	}
	if len(deps.Currencies) == 0 {
		deps.Currencies = domain.NewCurrencySet(nil)
	}
	return &Set{Deps: deps}
}

func (s *Set) tr(c telebot.Context) i18n.Translator {
	return s.Locales.ForUpdate(RequestContext(c), c)
}

func chatID(c telebot.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if sender := c.Sender(); sender != nil {
		return sender.ID
	}
	return 0
}

func sessionKey(c telebot.Context) state.Key {
	key := state.Key{ChatID: chatID(c)}
	if sender := c.Sender(); sender != nil {
		key.UserID = sender.ID
	}
	return key
}
