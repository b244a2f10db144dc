// Package keyboard renders the bot's inline keyboards and encodes their
// callback data.
package keyboard

import (
	"fmt"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/i18n"
)

// Callback actions. The router dispatches on the exact action.
const (
	ActionExpenseToggle = "exp_user"
	ActionExpenseSplit  = "exp_split"
	ActionConvertPick   = "conv"
	ActionConvertTo     = "conv_to"
	ActionPayConvert    = "pay_conv"
	ActionPayCurrency   = "pay_cur"
	ActionPayStart      = "pay"
	ActionLanguage      = "lang"
)

const selectedMark = "✓ "

var languageLabels = map[string]string{
	"en": "English 🇬🇧",
	"ru": "Русский 🇷🇺",
}

// Builder creates the inline keyboards used by the handlers.
type Builder struct {
	log *slog.Logger
}

// NewBuilder returns a new Builder instance.
func NewBuilder(log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{log: log}
}

// ExpenseMembers lists chat members as toggles followed by the split button.
func (b *Builder) ExpenseMembers(t i18n.Translator, payerID int64, members []domain.User, selected func(int64) bool) (*telebot.ReplyMarkup, error) {
	payer := strconv.FormatInt(payerID, 10)
	kb := NewInlineKeyboard()

	for _, member := range members {
		label := DisplayName(member)
		if selected != nil && selected(member.ID) {
			label = selectedMark + label
		}
		kb.AddRow(InlineButton{
			Text:   label,
			Unique: ActionExpenseToggle,
			Data:   Join(payer, strconv.FormatInt(member.ID, 10)),
		})
	}

	kb.AddRow(InlineButton{Text: t.T("expense.split_equally"), Unique: ActionExpenseSplit, Data: payer})
	return kb.Build()
}

// Single renders one button.
func (b *Builder) Single(text, action, data string) (*telebot.ReplyMarkup, error) {
	return NewInlineKeyboard().AddRow(InlineButton{Text: text, Unique: action, Data: data}).Build()
}

// Currencies offers one button per currency; the code is appended to prefix.
func (b *Builder) Currencies(action, prefix string, currencies domain.CurrencySet) (*telebot.ReplyMarkup, error) {
	kb := NewInlineKeyboard()
	for _, cur := range currencies {
		data := cur.String()
		if prefix != "" {
			data = Join(prefix, data)
		}
		kb.AddRow(InlineButton{Text: cur.String(), Unique: action, Data: data})
	}
	return kb.Build()
}

// PaymentActions offers converting the pair's debts and starting a payment.
func (b *Builder) PaymentActions(t i18n.Translator, debtorID, creditorID int64, withConvert bool) (*telebot.ReplyMarkup, error) {
	pair := Join(strconv.FormatInt(debtorID, 10), strconv.FormatInt(creditorID, 10))
	row := make([]InlineButton, 0, 2)
	if withConvert {
		row = append(row, InlineButton{Text: t.T("convert.button"), Unique: ActionPayConvert, Data: pair})
	}
	row = append(row, InlineButton{Text: t.T("pay.button"), Unique: ActionPayStart, Data: pair})
	return NewInlineKeyboard().AddRow(row...).Build()
}

// Languages offers every loaded catalog.
func (b *Builder) Languages(langs []string) (*telebot.ReplyMarkup, error) {
	kb := NewInlineKeyboard()
	for _, lang := range langs {
		kb.AddRow(InlineButton{Text: LanguageLabel(lang), Unique: ActionLanguage, Data: lang})
	}
	return kb.Build()
}

// LanguageLabel returns the human name of a language code.
func LanguageLabel(lang string) string {
	if label, ok := languageLabels[lang]; ok {
		return label
	}
	return lang
}

// DisplayName renders a member as @username, falling back to the id.
func DisplayName(u domain.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("id%d", u.ID)
}
