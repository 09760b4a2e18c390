package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	FiatPlaces    int32 = 2
	GramPlaces    int32 = 4
	PercentPlaces int32 = 4
	PricePlaces   int32 = 6
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrNegativeAmount  = errors.New("amount must not be negative")
)

var hundred = decimal.NewFromInt(100)

// Parse reads a plain decimal string with at most places fractional digits.
// Exponent notation and negative values are rejected.
func Parse(input string, places int32) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || strings.ContainsAny(trimmed, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if value.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	if value.Exponent() < -places {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value, nil
}

func ParseFiat(input string) (decimal.Decimal, error) {
	return Parse(input, FiatPlaces)
}

func ParseGrams(input string) (decimal.Decimal, error) {
	return Parse(input, GramPlaces)
}

func ParsePercent(input string) (decimal.Decimal, error) {
	value, err := Parse(input, PercentPlaces)
	if err != nil {
		return decimal.Zero, err
	}
	if value.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

func ParsePrice(input string) (decimal.Decimal, error) {
	return Parse(input, PricePlaces)
}

// Positive is Parse restricted to values greater than zero.
func Positive(input string, places int32) (decimal.Decimal, error) {
	value, err := Parse(input, places)
	if err != nil {
		return decimal.Zero, err
	}
	if !value.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

func RoundFiat(value decimal.Decimal) decimal.Decimal {
	return value.RoundBank(FiatPlaces)
}

func RoundGrams(value decimal.Decimal) decimal.Decimal {
	return value.RoundBank(GramPlaces)
}

// PercentOf returns amount*percent/100 rounded half-even to places.
func PercentOf(amount, percent decimal.Decimal, places int32) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).RoundBank(places)
}

func FormatFiat(value decimal.Decimal) string {
	return value.StringFixedBank(FiatPlaces)
}

func FormatGrams(value decimal.Decimal) string {
	return value.StringFixedBank(GramPlaces)
}

func FormatPrice(value decimal.Decimal) string {
	return value.StringFixedBank(PricePlaces)
}
