package keyboard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/debtbot/internal/bot/keyboard"
	"github.com/Proton-105/debtbot/internal/domain"
)

type mockTranslator struct {
	translations map[string]string
}

func (m *mockTranslator) T(key string) string {
	if val, ok := m.translations[key]; ok {
		return val
	}
	return key
}

func (m *mockTranslator) Tf(key string, _ ...any) string { return m.T(key) }

func (m *mockTranslator) Lang() string { return "en" }

func TestInlineKeyboardBuilder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		markup, err := keyboard.NewInlineKeyboard().
			AddRow(
				keyboard.InlineButton{Text: "USD", Unique: "conv_to", Data: "all:USD"},
				keyboard.InlineButton{Text: "EUR", Unique: "conv_to", Data: "all:EUR"},
			).
			AddRow(keyboard.InlineButton{Text: "English", Unique: "lang", Data: "en"}).
			Build()
		require.NoError(t, err)

		require.Len(t, markup.InlineKeyboard, 2)
		assert.Len(t, markup.InlineKeyboard[0], 2)
		assert.Len(t, markup.InlineKeyboard[1], 1)
		assert.Equal(t, "conv_to:all:EUR", markup.InlineKeyboard[0][1].Data)
		assert.Empty(t, markup.InlineKeyboard[0][1].Unique)
	})

	t.Run("callback data overflow", func(t *testing.T) {
		_, err := keyboard.NewInlineKeyboard().
			AddRow(keyboard.InlineButton{Text: "Too big", Unique: "overflow", Data: strings.Repeat("x", keyboard.CallbackDataLimitBytes)}).
			Build()
		assert.Error(t, err)
	})
}

func TestBuilder_ExpenseMembers(t *testing.T) {
	tr := &mockTranslator{translations: map[string]string{"expense.split_equally": "Split equally"}}
	members := []domain.User{{ID: 1, Username: "alice"}, {ID: 2}}

	markup, err := keyboard.NewBuilder(nil).ExpenseMembers(tr, 9, members, func(id int64) bool { return id == 2 })
	require.NoError(t, err)

	require.Len(t, markup.InlineKeyboard, 3)
	assert.Equal(t, "@alice", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "exp_user:9:1", markup.InlineKeyboard[0][0].Data)
	assert.Equal(t, "✓ id2", markup.InlineKeyboard[1][0].Text)
	assert.Equal(t, "Split equally", markup.InlineKeyboard[2][0].Text)
	assert.Equal(t, "exp_split:9", markup.InlineKeyboard[2][0].Data)
}

func TestBuilder_CurrenciesAndPayment(t *testing.T) {
	b := keyboard.NewBuilder(nil)
	tr := &mockTranslator{}

	markup, err := b.Currencies(keyboard.ActionPayCurrency, keyboard.Join("5", "6"), domain.NewCurrencySet([]string{"usd", "eur"}))
	require.NoError(t, err)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "pay_cur:5:6:USD", markup.InlineKeyboard[0][0].Data)

	markup, err = b.PaymentActions(tr, 5, 6, true)
	require.NoError(t, err)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "pay_conv:5:6", markup.InlineKeyboard[0][0].Data)
	assert.Equal(t, "pay:5:6", markup.InlineKeyboard[0][1].Data)

	markup, err = b.Languages([]string{"en", "ru"})
	require.NoError(t, err)
	assert.Equal(t, "lang:ru", markup.InlineKeyboard[1][0].Data)
}
