package conversion

import (
	"errors"
	"fmt"
	"strings"

	"cacaowallet/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

var ErrInvalidPolicy = errors.New("invalid grading policy")

type policyFile struct {
	Bands map[string]bandFile `toml:"bands"`
}

type bandFile struct {
	Factor            string `toml:"factor"`
	FermentationAbove string `toml:"fermentation_above"`
	FermentationMin   string `toml:"fermentation_min"`
	FermentationMax   string `toml:"fermentation_max"`
	FermentationBelow string `toml:"fermentation_below"`
	MoistureMax       string `toml:"moisture_max"`
	ImpuritiesMax     string `toml:"impurities_max"`
}

// LoadPolicy reads grade bands from a TOML file. An empty path yields the
// default policy. Every grade must be present.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	var file policyFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return Policy{}, fmt.Errorf("read grading policy: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Policy{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidPolicy, strings.Join(keys, ", "))
	}
	return file.toPolicy()
}

// ParsePolicy is LoadPolicy for an in-memory document.
func ParsePolicy(document string) (Policy, error) {
	var file policyFile
	if _, err := toml.Decode(document, &file); err != nil {
		return Policy{}, fmt.Errorf("parse grading policy: %w", err)
	}
	return file.toPolicy()
}

func (f policyFile) toPolicy() (Policy, error) {
	policy := Policy{Bands: make(map[models.QualityGrade]Band, len(f.Bands))}
	for name, raw := range f.Bands {
		grade := models.QualityGrade(strings.ToUpper(name))
		band, err := raw.toBand()
		if err != nil {
			return Policy{}, fmt.Errorf("%w: band %s: %v", ErrInvalidPolicy, grade, err)
		}
		policy.Bands[grade] = band
	}
	for _, grade := range []models.QualityGrade{models.GradePremium, models.GradeGrado1, models.GradeGrado2} {
		if _, ok := policy.Bands[grade]; !ok {
			return Policy{}, fmt.Errorf("%w: missing band %s", ErrInvalidPolicy, grade)
		}
	}
	return policy, nil
}

func (b bandFile) toBand() (Band, error) {
	factor, err := decimal.NewFromString(b.Factor)
	if err != nil {
		return Band{}, fmt.Errorf("factor: %v", err)
	}
	if !factor.IsPositive() || factor.GreaterThan(decimal.NewFromInt(1)) {
		return Band{}, fmt.Errorf("factor must be in (0, 1]")
	}
	band := Band{Factor: factor}
	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.NullDecimal
	}{
		{"fermentation_above", b.FermentationAbove, &band.FermentationAbove},
		{"fermentation_min", b.FermentationMin, &band.FermentationMin},
		{"fermentation_max", b.FermentationMax, &band.FermentationMax},
		{"fermentation_below", b.FermentationBelow, &band.FermentationBelow},
		{"moisture_max", b.MoistureMax, &band.MoistureMax},
		{"impurities_max", b.ImpuritiesMax, &band.ImpuritiesMax},
	} {
		if field.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(field.raw)
		if err != nil {
			return Band{}, fmt.Errorf("%s: %v", field.name, err)
		}
		*field.dst = decimal.NewNullDecimal(value)
	}
	return band, nil
}
