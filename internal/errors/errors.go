// Package errors defines application errors with stable codes, the retry
// and circuit breaker helpers, and the reporting Handler.
package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Message keys resolved by the i18n catalog.
const (
	MessageGeneric       = "error.generic"
	MessageValidation    = "error.validation"
	MessageInvalidAmount = "error.invalid_amount"
	MessageTemporary     = "error.temporary"
	MessageUnavailable   = "error.unavailable"
	MessageConversion    = "error.conversion"
	MessageState         = "error.state"
	MessageRateLimit     = "error.rate_limit"
)

type AppError struct {
	Code    string
	Message string
	// MessageKey is the i18n key shown to the user.
	MessageKey string
	Severity   Severity
	Retryable  bool
	cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:       "E100",
		Message:    msg,
		MessageKey: MessageValidation,
		Severity:   SeverityLow,
	}
}

func NewInvalidAmountError(cause error) *AppError {
	return &AppError{
		Code:       "E110",
		Message:    fmt.Sprintf("Invalid amount: %v", cause),
		MessageKey: MessageInvalidAmount,
		Severity:   SeverityLow,
		cause:      cause,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:       "E200",
		Message:    fmt.Sprintf("Database error: %s", underlyingMsg),
		MessageKey: MessageTemporary,
		Severity:   SeverityHigh,
		Retryable:  true,
		cause:      cause,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:       "E300",
		Message:    fmt.Sprintf("External API error: %s: %v", apiName, cause),
		MessageKey: MessageUnavailable,
		Severity:   SeverityMedium,
		Retryable:  true,
		cause:      cause,
	}
}

// NewConversionError wraps a rate lookup that cannot succeed by retrying,
// e.g. a window without quotes.
func NewConversionError(cause error) *AppError {
	return &AppError{
		Code:       "E310",
		Message:    fmt.Sprintf("Conversion error: %v", cause),
		MessageKey: MessageConversion,
		Severity:   SeverityMedium,
		cause:      cause,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:       "E400",
		Message:    msg,
		MessageKey: MessageState,
		Severity:   SeverityMedium,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:       "E500",
		Message:    fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		MessageKey: MessageRateLimit,
		Severity:   SeverityLow,
	}
}
