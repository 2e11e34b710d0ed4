package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyNotFound is returned when a currency code is not registered.
	ErrCurrencyNotFound = errors.New("currency not found")
	// ErrRateUnavailable is returned when no fresh quote exists, direct or inverse.
	ErrRateUnavailable = errors.New("rate unavailable")
	// ErrZeroRate is returned instead of dividing by a zero-valued cached rate.
	ErrZeroRate = errors.New("cached rate is zero")
	// ErrNotAuthenticated is returned when an operation requires a logged-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrUserAlreadyExists is returned when a username is already taken.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// ValidationError reports malformed input: a bad currency code shape,
// a non-positive quantity and the like.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError reports a withdrawal exceeding the wallet balance.
// The wallet is left untouched when this error is returned.
type InsufficientFundsError struct {
	Currency  string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s %s, required %s %s",
		e.Available.String(), e.Currency, e.Required.String(), e.Currency)
}

// ExternalSourceError reports a failed fetch from one upstream quote provider.
type ExternalSourceError struct {
	Source string
	Reason string
	Err    error
}

func (e *ExternalSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Reason)
}

func (e *ExternalSourceError) Unwrap() error {
	return e.Err
}
