package handlers

import (
	"errors"

	apperrors "github.com/Proton-105/debtbot/internal/errors"
	"github.com/Proton-105/debtbot/internal/ledger"
	"github.com/Proton-105/debtbot/internal/state"
)

// MapError converts domain errors into AppErrors so the error middleware
// can pick the user message. Unknown errors pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ErrBadAmount), errors.Is(err, ledger.ErrInvalidAmount):
		return apperrors.NewInvalidAmountError(err)
	case errors.Is(err, ledger.ErrConversion):
		return apperrors.NewConversionError(err)
	case errors.Is(err, state.ErrInvalidTransition), errors.Is(err, state.ErrStateLocked):
		return apperrors.NewStateError(err.Error())
	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, ledger.ErrChatNotFound),
		errors.Is(err, ledger.ErrDebtNotFound),
		errors.Is(err, ledger.ErrNoParticipants),
		errors.Is(err, ErrUsage),
		errors.Is(err, ErrUnsupportedCurrency):
		return apperrors.NewValidationError(err.Error())
	default:
		return err
	}
}
