package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/ledger"
	"github.com/Proton-105/debtbot/internal/state"
)

// Expense starts splitting an expense paid by the sender.
func (s *Set) Expense(c telebot.Context) error {
	ctx := RequestContext(c)
	t := s.tr(c)
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args, err := ParseExpense(commandArgs(c.Text()), s.Currencies)
	switch {
	case errors.Is(err, ErrUnsupportedCurrency):
		return c.Send(t.Tf("expense.wrong_currency", currencyList(s.Currencies)))
	case errors.Is(err, ErrUsage):
		return c.Send(t.T("expense.usage"))
	case err != nil:
		return err
	}

	members, err := s.Registry.ListChatUsers(ctx, chatID(c))
	if err != nil {
		return fmt.Errorf("list chat users: %w", err)
	}
	if len(members) == 0 {
		return c.Send(t.T("expense.no_members"))
	}

	pending := &state.PendingExpense{
		Amount:      args.Amount,
		Currency:    args.Currency.String(),
		Description: args.Description,
	}
	// A new command replaces any unfinished flow of the same member.
	if err := s.FSM.SetState(ctx, sessionKey(c), state.StateExpenseSelecting, state.Data{Expense: pending}); err != nil {
		return err
	}

	markup, err := s.Keyboard.ExpenseMembers(t, sender.ID, members, pending.IsSelected)
	if err != nil {
		return err
	}
	return c.Send(t.T("expense.choose"), markup)
}

// OnExpenseToggle handles "exp_user:<payer>:<member>".
func (s *Set) OnExpenseToggle(c telebot.Context, fields []string) error {
	if len(fields) != 2 {
		return c.Respond()
	}
	payerID, memberID, err := parseIDs(fields[0], fields[1])
	if err != nil {
		return c.Respond()
	}

	ctx := RequestContext(c)
	t := s.tr(c)
	if !s.isSender(c, payerID) {
		return c.Respond(&telebot.CallbackResponse{Text: t.T("common.not_yours")})
	}

	key := sessionKey(c)
	pending, err := s.pendingExpense(c, key)
	if err != nil {
		return err
	}
	if pending == nil {
		return c.Respond(&telebot.CallbackResponse{Text: t.T("expense.expired")})
	}

	pending.Toggle(memberID)
	if err := s.FSM.TransitionTo(ctx, key, state.StateExpenseSelecting, state.Data{Expense: pending}); err != nil {
		return err
	}

	members, err := s.Registry.ListChatUsers(ctx, chatID(c))
	if err != nil {
		return fmt.Errorf("list chat users: %w", err)
	}
	markup, err := s.Keyboard.ExpenseMembers(t, payerID, members, pending.IsSelected)
	if err != nil {
		return err
	}

	_ = c.Respond()
	if msg := c.Callback().Message; msg != nil {
		if _, err := c.Bot().EditReplyMarkup(msg, markup); err != nil {
			s.Log.Warn("failed to refresh expense keyboard", slog.Any("error", err))
		}
	}
	return nil
}

// OnExpenseSplit handles "exp_split:<payer>".
func (s *Set) OnExpenseSplit(c telebot.Context, fields []string) error {
	if len(fields) != 1 {
		return c.Respond()
	}
	payerID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return c.Respond()
	}

	ctx := RequestContext(c)
	t := s.tr(c)
	if !s.isSender(c, payerID) {
		return c.Respond(&telebot.CallbackResponse{Text: t.T("common.not_yours")})
	}

	key := sessionKey(c)
	pending, err := s.pendingExpense(c, key)
	if err != nil {
		return err
	}
	if pending == nil {
		return c.Respond(&telebot.CallbackResponse{Text: t.T("expense.expired")})
	}
	if len(pending.Selected) == 0 {
		return c.Respond(&telebot.CallbackResponse{Text: t.T("expense.please_choose")})
	}

	results, err := s.Ledger.SplitExpense(ctx, ledger.Expense{
		ChatID:      chatID(c),
		CreditorID:  payerID,
		DebtorIDs:   pending.Selected,
		Total:       pending.Amount,
		Currency:    domain.Currency(pending.Currency),
		Description: pending.Description,
	})
	if err != nil {
		return MapError(err)
	}
	if err := s.FSM.ClearState(ctx, key); err != nil {
		s.Log.Warn("failed to clear expense session", slog.Any("error", err))
	}

	s.Log.Info("expense split",
		slog.Int64("chat_id", chatID(c)),
		slog.Int64("payer_id", payerID),
		slog.Int("participants", len(pending.Selected)),
		slog.Int("merged", len(results)),
	)

	_ = c.Respond()
	return c.Send(t.T("expense.updated"))
}

func (s *Set) pendingExpense(c telebot.Context, key state.Key) (*state.PendingExpense, error) {
	session, err := s.FSM.GetState(RequestContext(c), key)
	switch {
	case errors.Is(err, state.ErrStateNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if session.CurrentState != state.StateExpenseSelecting || session.Data.Expense == nil {
		return nil, nil
	}
	return session.Data.Expense, nil
}

func (s *Set) isSender(c telebot.Context, userID int64) bool {
	sender := c.Sender()
	return sender != nil && sender.ID == userID
}

func parseIDs(a, b string) (int64, int64, error) {
	first, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	second, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

func currencyList(set domain.CurrencySet) string {
	codes := make([]string, len(set))
	for i, cur := range set {
		codes[i] = cur.String()
	}
	return strings.Join(codes, ", ")
}
