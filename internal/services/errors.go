package services

import (
	"database/sql"
	"errors"
	"fmt"

	"cacaowallet/internal/conversion"
	"cacaowallet/internal/ledger"
	"cacaowallet/internal/reserve"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrInsufficientFunds    = ledger.ErrInsufficientFunds
	ErrWalletInactive       = ledger.ErrWalletInactive
	ErrInsufficientReserve  = reserve.ErrInsufficientReserve
	ErrInsufficientTreasury = reserve.ErrInsufficientTreasury
	ErrInvariantViolated    = reserve.ErrInvariantViolated
	ErrAlreadyResolved      = errors.New("transaction already resolved")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorizedOperator = errors.New("operator is not allowed to settle")
	ErrQuoteNotFound        = errors.New("quote not found")
	ErrQuoteExpired         = errors.New("quote expired")
	ErrQuoteConsumed        = errors.New("quote already used")
)

// ValidationError names the offending input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// notFound maps a missing row to ErrNotFound and passes other errors through.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// measurementError turns a grading rejection into a ValidationError.
func measurementError(err error) error {
	var me *conversion.MeasurementError
	if errors.As(err, &me) {
		return &ValidationError{Field: me.Field, Reason: me.Reason}
	}
	return err
}

// FailureReason is the metrics label of a failed operation.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientReserve):
		return "insufficient_reserve"
	case errors.Is(err, ErrInsufficientTreasury):
		return "insufficient_treasury"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrWalletInactive):
		return "wallet_inactive"
	case errors.Is(err, ErrUnauthorizedOperator):
		return "unauthorized"
	case errors.Is(err, ErrQuoteExpired), errors.Is(err, ErrQuoteConsumed), errors.Is(err, ErrQuoteNotFound):
		return "quote"
	default:
		return "internal"
	}
}
