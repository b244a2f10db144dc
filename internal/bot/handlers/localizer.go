package handlers

import (
	"context"
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/i18n"
	"github.com/Proton-105/debtbot/internal/ledger"
)

// Localizer picks the catalog configured for a chat.
type Localizer struct {
	catalogs    *i18n.Manager
	registry    ledger.Registry
	defaultLang string
	log         *slog.Logger
}

func NewLocalizer(catalogs *i18n.Manager, registry ledger.Registry, defaultLang string, log *slog.Logger) *Localizer {
	if log == nil {
		log = slog.Default()
	}
	return &Localizer{catalogs: catalogs, registry: registry, defaultLang: defaultLang, log: log}
}

// ForChat returns the translator of chatID, or the default language when
// the chat is unknown.
func (l *Localizer) ForChat(ctx context.Context, chatID int64) i18n.Translator {
	lang := l.defaultLang
	if l.registry != nil {
		chat, err := l.registry.GetChat(ctx, chatID)
		switch {
		case err == nil && chat.Language != "":
			lang = chat.Language
		case err != nil && !errors.Is(err, ledger.ErrChatNotFound):
			l.log.Warn("failed to load chat language", slog.Int64("chat_id", chatID), slog.Any("error", err))
		}
	}
	return l.catalogs.Translator(lang)
}

// ForUpdate resolves the chat of an update.
func (l *Localizer) ForUpdate(ctx context.Context, c telebot.Context) i18n.Translator {
	return l.ForChat(ctx, chatID(c))
}

// Languages lists the selectable languages.
func (l *Localizer) Languages() []string {
	return l.catalogs.Languages()
}

// Supports reports whether lang can be selected.
func (l *Localizer) Supports(lang string) bool {
	return l.catalogs.Supports(lang)
}
