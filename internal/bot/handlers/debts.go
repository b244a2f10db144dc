package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/keyboard"
	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/i18n"
	"github.com/Proton-105/debtbot/internal/ledger"
)

// Listing scopes carried by the convert buttons.
const (
	scopeAll      = "all"
	scopeOwedTo   = "to"
	scopeOwedBy   = "by"
	scopeSplitter = "."
)

// Debts lists every debt of the chat.
func (s *Set) Debts(c telebot.Context) error {
	ctx := RequestContext(c)
	t := s.tr(c)

	debts, err := s.Ledger.ChatDebts(ctx, chatID(c))
	if err != nil {
		return fmt.Errorf("list chat debts: %w", err)
	}
	if len(debts) == 0 {
		return c.Send(t.T("debts.none"))
	}

	names, err := s.memberNames(ctx, chatID(c))
	if err != nil {
		return err
	}

	lines := []string{t.T("debts.header")}
	for _, d := range debts {
		lines = append(lines, t.Tf("debts.line", names.of(d.DebtorID), names.of(d.CreditorID), formatAmount(d.Amount), d.Currency))
	}
	return s.sendWithConvert(c, t, lines, scopeAll)
}

// DebtsToMe lists debts owed to the sender.
func (s *Set) DebtsToMe(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := RequestContext(c)
	t := s.tr(c)

	debts, err := s.Ledger.DebtsOwedTo(ctx, chatID(c), sender.ID)
	if err != nil {
		return fmt.Errorf("list debts owed to member: %w", err)
	}
	if len(debts) == 0 {
		return c.Send(t.T("debts.to_me_none"))
	}

	names, err := s.memberNames(ctx, chatID(c))
	if err != nil {
		return err
	}

	lines := []string{t.Tf("debts.to_me_header", names.of(sender.ID))}
	for _, d := range debts {
		lines = append(lines, t.Tf("debts.to_me_line", names.of(d.DebtorID), formatAmount(d.Amount), d.Currency))
	}
	return s.sendWithConvert(c, t, lines, scope(scopeOwedTo, sender.ID))
}

// MyDebts lists debts owed by the sender.
func (s *Set) MyDebts(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := RequestContext(c)
	t := s.tr(c)

	debts, err := s.Ledger.DebtsOwedBy(ctx, chatID(c), sender.ID)
	if err != nil {
		return fmt.Errorf("list debts owed by member: %w", err)
	}
	if len(debts) == 0 {
		return c.Send(t.T("debts.my_none"))
	}

	names, err := s.memberNames(ctx, chatID(c))
	if err != nil {
		return err
	}

	lines := []string{t.Tf("debts.my_header", names.of(sender.ID))}
	for _, d := range debts {
		lines = append(lines, t.Tf("debts.my_line", names.of(d.CreditorID), formatAmount(d.Amount), d.Currency))
	}
	return s.sendWithConvert(c, t, lines, scope(scopeOwedBy, sender.ID))
}

// OnConvertPick handles "conv:<scope>" by offering target currencies.
func (s *Set) OnConvertPick(c telebot.Context, fields []string) error {
	if len(fields) != 1 {
		return c.Respond()
	}
	markup, err := s.Keyboard.Currencies(keyboard.ActionConvertTo, fields[0], s.Currencies)
	if err != nil {
		return err
	}
	_ = c.Respond()
	return c.Send(s.tr(c).T("convert.choose"), markup)
}

// OnConvertTo handles "conv_to:<scope>:<currency>".
func (s *Set) OnConvertTo(c telebot.Context, fields []string) error {
	if len(fields) != 2 {
		return c.Respond()
	}
	target, err := s.Currencies.Parse(fields[1])
	if err != nil {
		return c.Respond()
	}

	ctx := RequestContext(c)
	t := s.tr(c)

	debts, err := s.scopeDebts(ctx, chatID(c), fields[0])
	if err != nil {
		return err
	}
	_ = c.Respond()
	if len(debts) == 0 {
		return c.Send(t.T("convert.nothing"))
	}

	result, err := s.Ledger.Consolidate(ctx, debts, target)
	if err != nil {
		return MapError(err)
	}

	names, err := s.memberNames(ctx, chatID(c))
	if err != nil {
		return err
	}

	lines := []string{t.Tf("convert.header", target)}
	lines = append(lines, balanceLines(t, names, result)...)
	lines = append(lines, failureLines(t, debts, result.Failures)...)
	return c.Send(strings.Join(lines, "\n"))
}

func (s *Set) scopeDebts(ctx context.Context, chat int64, raw string) ([]domain.Debt, error) {
	kind, id, _ := strings.Cut(raw, scopeSplitter)
	if kind == scopeAll {
		return s.Ledger.ChatDebts(ctx, chat)
	}

	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: scope %q", ErrUsage, raw)
	}
	switch kind {
	case scopeOwedTo:
		return s.Ledger.DebtsOwedTo(ctx, chat, userID)
	case scopeOwedBy:
		return s.Ledger.DebtsOwedBy(ctx, chat, userID)
	default:
		return nil, fmt.Errorf("%w: scope %q", ErrUsage, raw)
	}
}

func (s *Set) sendWithConvert(c telebot.Context, t i18n.Translator, lines []string, scope string) error {
	markup, err := s.Keyboard.Single(t.T("convert.button"), keyboard.ActionConvertPick, scope)
	if err != nil {
		return err
	}
	return c.Send(strings.Join(lines, "\n"), markup)
}

func scope(kind string, userID int64) string {
	return kind + scopeSplitter + strconv.FormatInt(userID, 10)
}

func balanceLines(t i18n.Translator, names memberNames, result *ledger.Consolidation) []string {
	lines := make([]string, 0, len(result.Balances))
	for _, b := range result.Balances {
		if domain.IsSettled(b.Amount) {
			continue
		}
		lines = append(lines, t.Tf("debts.line", names.of(b.DebtorID()), names.of(b.CreditorID()), formatAmount(b.Magnitude()), b.Currency))
	}
	return lines
}

func failureLines(t i18n.Translator, debts []domain.Debt, failures []ledger.LegFailure) []string {
	if len(failures) == 0 {
		return nil
	}

	byID := make(map[int64]domain.Debt, len(debts))
	for _, d := range debts {
		byID[d.ID] = d
	}

	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		d, ok := byID[f.DebtID]
		if !ok {
			continue
		}
		lines = append(lines, t.Tf("convert.failed_leg", formatAmount(d.Amount), d.Currency, d.CreatedAt.Format(time.DateOnly)))
	}
	return lines
}

// memberNames resolves user ids to display names.
type memberNames map[int64]string

func (s *Set) memberNames(ctx context.Context, chat int64) (memberNames, error) {
	users, err := s.Registry.ListChatUsers(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("list chat users: %w", err)
	}
	names := make(memberNames, len(users))
	for _, u := range users {
		names[u.ID] = keyboard.DisplayName(u)
	}
	return names, nil
}

func (n memberNames) of(userID int64) string {
	if name, ok := n[userID]; ok {
		return name
	}
	return keyboard.DisplayName(domain.User{ID: userID})
}
