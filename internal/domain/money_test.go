package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "1.2344", want: "1.234"},
		{in: "1.2345", want: "1.235"},
		{in: "-1.2345", want: "-1.235"},
		{in: "33.3333333", want: "33.333"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tt.in))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestIsSettled(t *testing.T) {
	assert.True(t, IsSettled(decimal.Zero))
	assert.True(t, IsSettled(decimal.RequireFromString("0.001")))
	assert.True(t, IsSettled(decimal.RequireFromString("-0.0009")))
	assert.False(t, IsSettled(decimal.RequireFromString("0.0011")))
	assert.False(t, IsSettled(decimal.RequireFromString("-5")))
}

func TestCurrencySet(t *testing.T) {
	set := NewCurrencySet([]string{"usd", " EUR ", "usd", ""})
	assert.Equal(t, CurrencySet{USD, EUR}, set)

	cur, err := set.Parse("eur")
	require.NoError(t, err)
	assert.Equal(t, EUR, cur)

	_, err = set.Parse("RUB")
	assert.Error(t, err)

	assert.Equal(t, CurrencySet(DefaultCurrencies), NewCurrencySet(nil))
}

func TestNewPair(t *testing.T) {
	assert.Equal(t, Pair{Low: 1, High: 9}, NewPair(9, 1))
	assert.Equal(t, NewPair(3, 4), NewPair(4, 3))
	assert.True(t, NewPair(1, 5).Less(NewPair(2, 3)))
	assert.True(t, NewPair(1, 3).Less(NewPair(1, 5)))
}
