package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/keyboard"
	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/i18n"
	"github.com/Proton-105/debtbot/internal/ledger"
)

// Ping privately reminds a member what they owe the sender.
func (s *Set) Ping(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := RequestContext(c)
	t := s.tr(c)

	mention, ok := ParseMention(commandArgs(c.Text()), messageEntities(c))
	if !ok {
		return c.Send(t.T("ping.usage"))
	}
	target, err := s.resolveMention(ctx, chatID(c), mention)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return c.Send(t.T("common.user_not_found"))
	}
	if err != nil {
		return err
	}

	debts, err := s.Ledger.PairDebts(ctx, chatID(c), target.ID, sender.ID)
	if err != nil {
		return fmt.Errorf("list pair debts: %w", err)
	}

	pinger := keyboard.DisplayName(domain.User{ID: sender.ID, Username: sender.Username})
	text := t.Tf("ping.no_debt", pinger)
	if len(debts) > 0 {
		lines := []string{t.Tf("ping.header", pinger)}
		lines = append(lines, debtLines(t, debts)...)
		text = strings.Join(lines, "\n")
	}

	if _, err := s.Notifier.Send(&telebot.User{ID: target.ID}, text); err != nil {
		s.Log.Warn("failed to deliver ping",
			slog.Int64("chat_id", chatID(c)),
			slog.Int64("target_id", target.ID),
			slog.Any("error", err),
		)
		return c.Send(t.Tf("ping.failed", target.Username))
	}

	return c.Send(t.T("ping.sent"))
}

func (s *Set) resolveMention(ctx context.Context, chat int64, m Mention) (*domain.User, error) {
	if m.UserID != 0 {
		return s.Registry.GetUser(ctx, chat, m.UserID)
	}
	return s.Registry.FindUserByUsername(ctx, chat, m.Username)
}

func debtLines(t i18n.Translator, debts []domain.Debt) []string {
	lines := make([]string, 0, len(debts))
	for _, d := range debts {
		lines = append(lines, t.Tf("common.line", formatAmount(d.Amount), d.Currency))
	}
	return lines
}

func messageEntities(c telebot.Context) telebot.Entities {
	if msg := c.Message(); msg != nil {
		return msg.Entities
	}
	return nil
}
