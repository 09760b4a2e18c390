package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		places  int32
		want    string
		wantErr error
	}{
		{name: "whole", input: "100", places: FiatPlaces, want: "100"},
		{name: "two places", input: " 12.34 ", places: FiatPlaces, want: "12.34"},
		{name: "too many fiat places", input: "1.234", places: FiatPlaces, wantErr: ErrTooManyDecimals},
		{name: "grams", input: "0.0001", places: GramPlaces, want: "0.0001"},
		{name: "too many gram places", input: "0.00001", places: GramPlaces, wantErr: ErrTooManyDecimals},
		{name: "negative", input: "-5", places: FiatPlaces, wantErr: ErrNegativeAmount},
		{name: "empty", input: "", places: FiatPlaces, wantErr: ErrInvalidAmount},
		{name: "garbage", input: "12a", places: FiatPlaces, wantErr: ErrInvalidAmount},
		{name: "exponent", input: "1e3", places: FiatPlaces, wantErr: ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, tt.places)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestPositiveRejectsZero(t *testing.T) {
	_, err := Positive("0.00", FiatPlaces)
	require.ErrorIs(t, err, ErrInvalidAmount)

	value, err := Positive("0.01", FiatPlaces)
	require.NoError(t, err)
	assert.Equal(t, "0.01", FormatFiat(value))
}

func TestParsePercentBounds(t *testing.T) {
	_, err := ParsePercent("100.5")
	require.ErrorIs(t, err, ErrInvalidAmount)

	value, err := ParsePercent("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1.5", value.String())
}

func TestRoundingIsHalfEven(t *testing.T) {
	assert.Equal(t, "0.1234", FormatGrams(RoundGrams(decimal.RequireFromString("0.12345"))))
	assert.Equal(t, "0.1236", FormatGrams(RoundGrams(decimal.RequireFromString("0.12355"))))
	assert.Equal(t, "2.00", FormatFiat(RoundFiat(decimal.RequireFromString("2.005"))))
	assert.Equal(t, "2.02", FormatFiat(RoundFiat(decimal.RequireFromString("2.015"))))
}

func TestPercentOf(t *testing.T) {
	fee := PercentOf(decimal.NewFromInt(200), decimal.RequireFromString("1.5"), FiatPlaces)
	assert.Equal(t, "3.00", FormatFiat(fee))

	fee = PercentOf(decimal.RequireFromString("0.50"), decimal.RequireFromString("1.5"), FiatPlaces)
	assert.Equal(t, "0.01", FormatFiat(fee))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "50000.0000", FormatGrams(decimal.NewFromInt(50000)))
	assert.Equal(t, "0.012000", FormatPrice(decimal.RequireFromString("0.012")))
}
