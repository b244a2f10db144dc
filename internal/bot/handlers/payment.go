package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/keyboard"
	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/i18n"
	"github.com/Proton-105/debtbot/internal/ledger"
	"github.com/Proton-105/debtbot/internal/state"
)

// PayDebt shows what the sender owes a member and offers to pay.
func (s *Set) PayDebt(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := RequestContext(c)
	t := s.tr(c)

	mention, ok := ParseMention(commandArgs(c.Text()), messageEntities(c))
	if !ok {
		return c.Send(t.T("pay.usage"))
	}
	creditor, err := s.resolveMention(ctx, chatID(c), mention)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return c.Send(t.T("common.user_not_found"))
	}
	if err != nil {
		return err
	}
	if creditor.ID == sender.ID {
		return c.Send(t.T("pay.self"))
	}

	debts, err := s.Ledger.PairDebts(ctx, chatID(c), sender.ID, creditor.ID)
	if err != nil {
		return fmt.Errorf("list pair debts: %w", err)
	}
	if len(debts) == 0 {
		return c.Send(t.T("pay.no_debts"))
	}

	lines := []string{t.Tf("pay.header", creditor.Username)}
	lines = append(lines, debtLines(t, debts)...)
	lines = append(lines, t.Tf("pay.contacts", creditor.Phone, creditor.PreferredBank))

	markup, err := s.Keyboard.PaymentActions(t, sender.ID, creditor.ID, mixedCurrencies(debts))
	if err != nil {
		return err
	}
	return c.Send(strings.Join(lines, "\n"), markup)
}

// OnPayConvert handles "pay_conv:<debtor>:<creditor>".
func (s *Set) OnPayConvert(c telebot.Context, fields []string) error {
	if len(fields) != 2 {
		return c.Respond()
	}
	debtorID, _, err := parseIDs(fields[0], fields[1])
	if err != nil {
		return c.Respond()
	}
	if !s.isSender(c, debtorID) {
		return c.Respond(&telebot.CallbackResponse{Text: s.tr(c).T("common.not_yours")})
	}

	markup, err := s.Keyboard.Currencies(keyboard.ActionPayCurrency, keyboard.Join(fields...), s.Currencies)
	if err != nil {
		return err
	}
	_ = c.Respond()
	return c.Send(s.tr(c).T("convert.choose"), markup)
}

// OnPayCurrency handles "pay_cur:<debtor>:<creditor>:<currency>".
func (s *Set) OnPayCurrency(c telebot.Context, fields []string) error {
	if len(fields) != 3 {
		return c.Respond()
	}
	debtorID, creditorID, err := parseIDs(fields[0], fields[1])
	if err != nil {
		return c.Respond()
	}
	target, err := s.Currencies.Parse(fields[2])
	if err != nil {
		return c.Respond()
	}

	ctx := RequestContext(c)
	t := s.tr(c)
	if !s.isSender(c, debtorID) {
		return c.Respond(&telebot.CallbackResponse{Text: t.T("common.not_yours")})
	}
	_ = c.Respond()

	debts, err := s.Ledger.PairDebts(ctx, chatID(c), debtorID, creditorID)
	if err != nil {
		return fmt.Errorf("list pair debts: %w", err)
	}
	if len(debts) == 0 {
		return c.Send(t.T("pay.no_debts"))
	}

	result, err := s.Ledger.Consolidate(ctx, debts, target)
	if err != nil {
		return MapError(err)
	}

	lines := []string{t.T("pay.converted_header")}
	for _, b := range result.Balances {
		if domain.IsSettled(b.Amount) {
			continue
		}
		lines = append(lines, t.Tf("common.line", formatAmount(b.Magnitude()), b.Currency))
	}
	lines = append(lines, failureLines(t, debts, result.Failures)...)

	markup, err := s.Keyboard.PaymentActions(t, debtorID, creditorID, false)
	if err != nil {
		return err
	}
	return c.Send(strings.Join(lines, "\n"), markup)
}

// OnPayStart handles "pay:<debtor>:<creditor>" and waits for the amount.
func (s *Set) OnPayStart(c telebot.Context, fields []string) error {
	if len(fields) != 2 {
		return c.Respond()
	}
	debtorID, creditorID, err := parseIDs(fields[0], fields[1])
	if err != nil {
		return c.Respond()
	}

	ctx := RequestContext(c)
	t := s.tr(c)
	if !s.isSender(c, debtorID) {
		return c.Respond(&telebot.CallbackResponse{Text: t.T("common.not_yours")})
	}

	name := keyboard.DisplayName(domain.User{ID: creditorID})
	if creditor, err := s.Registry.GetUser(ctx, chatID(c), creditorID); err == nil {
		name = keyboard.DisplayName(*creditor)
	}

	data := state.Data{Payment: &state.PendingPayment{CreditorID: creditorID, CreditorName: name}}
	if err := s.FSM.SetState(ctx, sessionKey(c), state.StatePaymentAwaitingAmount, data); err != nil {
		return err
	}

	_ = c.Respond()
	return c.Send(t.T("pay.prompt"))
}

// OnPaymentAmount consumes "<amount> <currency>" while a payment is pending.
func (s *Set) OnPaymentAmount(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := RequestContext(c)
	t := s.tr(c)
	key := sessionKey(c)

	session, err := s.FSM.GetState(ctx, key)
	if err != nil {
		return err
	}
	pending := session.Data.Payment
	if pending == nil {
		return s.FSM.ClearState(ctx, key)
	}

	amount, cur, err := ParsePayment(c.Text(), s.Currencies)
	if err != nil {
		return c.Send(t.T("pay.wrong_format"))
	}

	debts, err := s.Ledger.PairDebts(ctx, chatID(c), sender.ID, pending.CreditorID)
	if err != nil {
		return fmt.Errorf("list pair debts: %w", err)
	}

	result, err := s.Ledger.Settle(ctx, ledger.Payment{
		ChatID:     chatID(c),
		DebtorID:   sender.ID,
		CreditorID: pending.CreditorID,
		Amount:     amount,
		Currency:   cur,
	})
	if errors.Is(err, ledger.ErrDebtNotFound) {
		s.clearSession(c, key)
		return c.Send(t.T("pay.no_debts"))
	}
	if err != nil {
		return MapError(err)
	}
	s.clearSession(c, key)

	s.Log.Info("payment settled",
		slog.Int64("chat_id", chatID(c)),
		slog.Int64("debtor_id", sender.ID),
		slog.Int64("creditor_id", pending.CreditorID),
		slog.String("amount", amount.String()),
		slog.String("currency", cur.String()),
		slog.Int("legs", len(result.Legs)),
		slog.Int("failures", len(result.Failures)),
	)

	return c.Send(settlementText(t, debts, result))
}

func (s *Set) clearSession(c telebot.Context, key state.Key) {
	if err := s.FSM.ClearState(RequestContext(c), key); err != nil {
		s.Log.Warn("failed to clear payment session", slog.String("session", key.String()), slog.Any("error", err))
	}
}

func settlementText(t i18n.Translator, debts []domain.Debt, result *ledger.SettlementResult) string {
	lines := make([]string, 0, 1+len(result.Failures))
	if result.FullyAllocated() {
		lines = append(lines, t.T("pay.all_paid"))
	} else {
		lines = append(lines, t.Tf("pay.not_all_paid", formatAmount(result.Remaining), result.Currency))
	}

	byID := make(map[int64]domain.Debt, len(debts))
	for _, d := range debts {
		byID[d.ID] = d
	}
	for _, f := range result.Failures {
		amount := "?"
		if d, ok := byID[f.DebtID]; ok {
			amount = formatAmount(d.Amount)
		}
		lines = append(lines, t.Tf("pay.leg_failed", amount, f.Currency))
	}
	return strings.Join(lines, "\n")
}

func mixedCurrencies(debts []domain.Debt) bool {
	for _, d := range debts[1:] {
		if d.Currency != debts[0].Currency {
			return true
		}
	}
	return false
}

