package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/keyboard"
	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/ledger"
	"github.com/Proton-105/debtbot/internal/state"
)

// Start greets the member and resets their conversation.
func (s *Set) Start(c telebot.Context) error {
	ctx := RequestContext(c)
	if err := s.Registry.RegisterChat(ctx, chatID(c)); err != nil {
		return fmt.Errorf("register chat: %w", err)
	}
	if err := s.FSM.ClearState(ctx, sessionKey(c)); err != nil && !errors.Is(err, state.ErrStateNotFound) {
		s.Log.Warn("failed to reset session", slog.Any("error", err))
	}

	t := s.tr(c)
	name := ""
	if sender := c.Sender(); sender != nil {
		name = sender.FirstName
		if name == "" {
			name = sender.Username
		}
	}

	return c.Send(t.Tf("start.hello", name) + "\n" + t.T("start.text"))
}

// Help lists the commands.
func (s *Set) Help(c telebot.Context) error {
	return c.Send(s.tr(c).T("help.text"))
}

// Cancel drops whatever flow the member is in.
func (s *Set) Cancel(c telebot.Context) error {
	if err := s.FSM.ClearState(RequestContext(c), sessionKey(c)); err != nil && !errors.Is(err, state.ErrStateNotFound) {
		return err
	}
	return c.Send(s.tr(c).T("common.cancelled"))
}

// Register records the sender's payment contacts in the chat.
func (s *Set) Register(c telebot.Context) error {
	t := s.tr(c)
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	phone, bank, err := ParseRegister(commandArgs(c.Text()))
	if err != nil {
		return c.Send(t.T("register.usage"))
	}
	if sender.Username == "" {
		return c.Send(t.T("register.no_username"))
	}

	err = s.Registry.RegisterUser(RequestContext(c), &domain.User{
		ID:            sender.ID,
		ChatID:        chatID(c),
		Username:      sender.Username,
		Phone:         phone,
		PreferredBank: bank,
	})
	switch {
	case errors.Is(err, ledger.ErrUserExists):
		return c.Send(t.T("register.already"))
	case err != nil:
		return fmt.Errorf("register user: %w", err)
	}

	s.Log.Info("user registered", slog.Int64("chat_id", chatID(c)), slog.Int64("user_id", sender.ID))
	return c.Send(t.T("register.done"))
}

// Language shows the language picker.
func (s *Set) Language(c telebot.Context) error {
	markup, err := s.Keyboard.Languages(s.Locales.Languages())
	if err != nil {
		return err
	}
	return c.Send(s.tr(c).T("lang.choose"), markup)
}

// OnLanguage handles "lang:<code>".
func (s *Set) OnLanguage(c telebot.Context, fields []string) error {
	if len(fields) != 1 || !s.Locales.Supports(fields[0]) {
		return c.Respond(&telebot.CallbackResponse{Text: s.tr(c).T("lang.unknown")})
	}

	lang := strings.ToLower(fields[0])
	if err := s.Registry.SetChatLanguage(RequestContext(c), chatID(c), lang); err != nil {
		return fmt.Errorf("set chat language: %w", err)
	}

	_ = c.Respond()
	return c.Send(s.tr(c).Tf("lang.set", keyboard.LanguageLabel(lang)))
}
