package handlers

import (
	"errors"
	"strings"

	"cacaowallet/internal/money"

	"github.com/shopspring/decimal"
)

var errInvalidAmount = errors.New("invalid amount")

func parseFiat(raw string) (decimal.Decimal, error) {
	amount, err := money.Positive(raw, money.FiatPlaces)
	if err != nil {
		return decimal.Zero, errInvalidAmount
	}
	return amount, nil
}

func parseGrams(raw string) (decimal.Decimal, error) {
	amount, err := money.Positive(raw, money.GramPlaces)
	if err != nil {
		return decimal.Zero, errInvalidAmount
	}
	return amount, nil
}

// parseOptional reads an optional measurement override. Empty means unset.
func parseOptional(raw *string, places int32) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value, err := money.Parse(*raw, places)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
