package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/Proton-105/debtbot/internal/domain"
)

var (
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrDebtNotFound is returned when a lookup or a settlement finds no debt.
	ErrDebtNotFound = errors.New("debt not found")
	// ErrUserNotFound is returned by registry lookups.
	ErrUserNotFound = errors.New("user not found")
	// ErrChatNotFound is returned by registry lookups.
	ErrChatNotFound = errors.New("chat not found")
	// ErrUserExists is returned when a member registers twice in the same chat.
	ErrUserExists = errors.New("user already registered in chat")
	// ErrConversion matches every *ConversionError via errors.Is.
	ErrConversion = errors.New("currency conversion failed")

	errStaleDebt    = errors.New("debt changed during conversion")
	errNoConverter  = errors.New("no converter configured")
	errNegativeRate = errors.New("converter returned a negative amount")
)

// ConversionError describes a failed rate lookup.
type ConversionError struct {
	From domain.Currency
	To   domain.Currency
	AsOf time.Time
	Err  error
}

func (e *ConversionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("convert %s to %s as of %s: %v", e.From, e.To, e.AsOf.Format(time.DateOnly), e.Err)
}

func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrConversion) match any ConversionError.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// LegFailure reports a debt that could not be processed because its
// conversion failed. Processing of the remaining debts continues.
type LegFailure struct {
	DebtID   int64
	Currency domain.Currency
	Err      error
}
