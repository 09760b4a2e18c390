// Package conversion turns the grading measurements of a physical cacao
// delivery into the number of tokens (grams) credited for it.
package conversion

import (
	"fmt"

	"cacaowallet/internal/models"

	"github.com/shopspring/decimal"
)

// TokenPlaces is the fractional precision of issued tokens.
const TokenPlaces int32 = 4

var hundred = decimal.NewFromInt(100)

// Measurements are the raw inspection inputs. Moisture, fermentation and
// impurities are percentages.
type Measurements struct {
	GrossWeight  decimal.Decimal
	Grade        models.QualityGrade
	Moisture     decimal.Decimal
	Fermentation decimal.Decimal
	Impurities   decimal.Decimal
}

type Result struct {
	ConversionFactor decimal.Decimal
	FinalTokens      decimal.Decimal
}

// MeasurementError reports an input that is malformed or outside the band
// of the declared grade.
type MeasurementError struct {
	Field  string
	Reason string
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Band is the acceptance window and yield factor of one quality grade.
// Unset bounds are not checked.
type Band struct {
	Factor            decimal.Decimal
	FermentationAbove decimal.NullDecimal
	FermentationMin   decimal.NullDecimal
	FermentationMax   decimal.NullDecimal
	FermentationBelow decimal.NullDecimal
	MoistureMax       decimal.NullDecimal
	ImpuritiesMax     decimal.NullDecimal
}

type Policy struct {
	Bands map[models.QualityGrade]Band
}

func DefaultPolicy() Policy {
	return Policy{Bands: map[models.QualityGrade]Band{
		models.GradePremium: {
			Factor:            decimal.RequireFromString("1.00"),
			FermentationAbove: bound("75"),
			MoistureMax:       bound("7"),
		},
		models.GradeGrado1: {
			Factor:          decimal.RequireFromString("0.90"),
			FermentationMin: bound("50"),
			FermentationMax: bound("75"),
			MoistureMax:     bound("9"),
		},
		models.GradeGrado2: {
			Factor:            decimal.RequireFromString("0.70"),
			FermentationBelow: bound("50"),
		},
	}}
}

// ComputeTokens grades a delivery with the default policy.
func ComputeTokens(m Measurements) (Result, error) {
	return DefaultPolicy().ComputeTokens(m)
}

// ComputeTokens validates the measurements against the band of the declared
// grade and returns grossWeight*factor rounded half-even to TokenPlaces.
// Measurements outside the band are rejected, never regraded.
func (p Policy) ComputeTokens(m Measurements) (Result, error) {
	band, err := p.Classify(m)
	if err != nil {
		return Result{}, err
	}
	final := m.GrossWeight.Mul(band.Factor).RoundBank(TokenPlaces)
	return Result{ConversionFactor: band.Factor, FinalTokens: final}, nil
}

// Classify checks the measurements and returns the band they fall in.
func (p Policy) Classify(m Measurements) (Band, error) {
	if !m.GrossWeight.IsPositive() {
		return Band{}, &MeasurementError{Field: "gross_weight", Reason: "must be greater than zero"}
	}
	if m.GrossWeight.Exponent() < -TokenPlaces {
		return Band{}, &MeasurementError{Field: "gross_weight", Reason: "too many decimal places"}
	}
	for _, pct := range []struct {
		field string
		value decimal.Decimal
	}{
		{"moisture_content", m.Moisture},
		{"fermentation_grade", m.Fermentation},
		{"impurities_content", m.Impurities},
	} {
		if pct.value.IsNegative() || pct.value.GreaterThan(hundred) {
			return Band{}, &MeasurementError{Field: pct.field, Reason: "must be between 0 and 100"}
		}
	}
	band, ok := p.Bands[m.Grade]
	if !ok {
		return Band{}, &MeasurementError{Field: "quality_grade", Reason: fmt.Sprintf("unknown grade %q", m.Grade)}
	}
	if err := band.check(m); err != nil {
		return Band{}, err
	}
	return band, nil
}

func (b Band) check(m Measurements) error {
	f := m.Fermentation
	if b.FermentationAbove.Valid && !f.GreaterThan(b.FermentationAbove.Decimal) {
		return outOfBand("fermentation_grade", m.Grade, "must be above "+b.FermentationAbove.Decimal.String())
	}
	if b.FermentationMin.Valid && f.LessThan(b.FermentationMin.Decimal) {
		return outOfBand("fermentation_grade", m.Grade, "must be at least "+b.FermentationMin.Decimal.String())
	}
	if b.FermentationMax.Valid && f.GreaterThan(b.FermentationMax.Decimal) {
		return outOfBand("fermentation_grade", m.Grade, "must be at most "+b.FermentationMax.Decimal.String())
	}
	if b.FermentationBelow.Valid && !f.LessThan(b.FermentationBelow.Decimal) {
		return outOfBand("fermentation_grade", m.Grade, "must be below "+b.FermentationBelow.Decimal.String())
	}
	if b.MoistureMax.Valid && m.Moisture.GreaterThan(b.MoistureMax.Decimal) {
		return outOfBand("moisture_content", m.Grade, "must be at most "+b.MoistureMax.Decimal.String())
	}
	if b.ImpuritiesMax.Valid && m.Impurities.GreaterThan(b.ImpuritiesMax.Decimal) {
		return outOfBand("impurities_content", m.Grade, "must be at most "+b.ImpuritiesMax.Decimal.String())
	}
	return nil
}

func outOfBand(field string, grade models.QualityGrade, reason string) error {
	return &MeasurementError{Field: field, Reason: fmt.Sprintf("%s for grade %s", reason, grade)}
}

func bound(value string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(value))
}
