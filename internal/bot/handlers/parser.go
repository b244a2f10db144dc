package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/domain"
)

var (
	// ErrUsage means the command arguments do not match its format.
	ErrUsage = errors.New("wrong command format")
	// ErrBadAmount means the amount is not a positive number.
	ErrBadAmount = errors.New("amount must be a positive number")
	// ErrUnsupportedCurrency means the currency is not whitelisted.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// ExpenseArgs are the arguments of /expense.
type ExpenseArgs struct {
	Amount      decimal.Decimal
	Currency    domain.Currency
	Description string
}

// ParseAmount accepts "12.5" and "12,5".
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrBadAmount, raw)
	}
	if !amount.IsPositive() || domain.IsSettled(amount) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrBadAmount, raw)
	}
	return amount, nil
}

// ParseCurrency validates code against the whitelist.
func ParseCurrency(code string, currencies domain.CurrencySet) (domain.Currency, error) {
	cur, err := currencies.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	return cur, nil
}

// ParseExpense parses "<amount> <currency> <description...>".
func ParseExpense(args string, currencies domain.CurrencySet) (ExpenseArgs, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return ExpenseArgs{}, ErrUsage
	}

	amount, err := ParseAmount(fields[0])
	if err != nil {
		return ExpenseArgs{}, err
	}
	cur, err := ParseCurrency(fields[1], currencies)
	if err != nil {
		return ExpenseArgs{}, err
	}

	return ExpenseArgs{
		Amount:      amount,
		Currency:    cur,
		Description: strings.Join(fields[2:], " "),
	}, nil
}

// ParsePayment parses the "<amount> <currency>" reply of a payment.
func ParsePayment(text string, currencies domain.CurrencySet) (decimal.Decimal, domain.Currency, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return decimal.Zero, "", ErrUsage
	}

	amount, err := ParseAmount(fields[0])
	if err != nil {
		return decimal.Zero, "", err
	}
	cur, err := ParseCurrency(fields[1], currencies)
	if err != nil {
		return decimal.Zero, "", err
	}
	return amount, cur, nil
}

// ParseRegister parses "<phone> <bank...>".
func ParseRegister(args string) (phone, bank string, err error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", "", ErrUsage
	}
	return fields[0], strings.Join(fields[1:], " "), nil
}

// Mention identifies the member a command refers to.
type Mention struct {
	Username string
	UserID   int64
}

// ParseMention finds the first @username in args, or a text mention of a
// member without a username.
func ParseMention(args string, entities telebot.Entities) (Mention, bool) {
	for _, e := range entities {
		if e.Type == telebot.EntityTMention && e.User != nil {
			return Mention{UserID: e.User.ID, Username: e.User.Username}, true
		}
	}

	for _, field := range strings.Fields(args) {
		if name := strings.TrimPrefix(field, "@"); name != field && name != "" {
			return Mention{Username: name}, true
		}
	}

	return Mention{}, false
}

// commandArgs drops the leading "/command" token.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	_, rest, _ := strings.Cut(text, " ")
	return strings.TrimSpace(rest)
}

func formatAmount(amount decimal.Decimal) string {
	return domain.Round(amount).String()
}
