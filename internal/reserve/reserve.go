// Package reserve models the physical cacao backing issued tokens and the
// fee treasury. Both types are values: every operation returns an updated
// copy and leaves the receiver untouched, so callers persist the result only
// once the whole settlement succeeds.
package reserve

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientReserve  = errors.New("insufficient reserve")
	ErrInsufficientTreasury = errors.New("insufficient treasury balance")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvariantViolated    = errors.New("reserve invariant violated")
)

// Reserve is the global aggregate. AvailableStock is always
// TotalCacaoStock minus TokensIssued.
type Reserve struct {
	TotalCacaoStock decimal.Decimal `db:"total_cacao_stock" json:"total_cacao_stock"`
	TokensIssued    decimal.Decimal `db:"tokens_issued" json:"tokens_issued"`
	AvailableStock  decimal.Decimal `db:"available_stock" json:"available_stock"`
}

// ApplyDeposit records grams entering the vaults. Tokens are issued
// separately by IssueTokens.
func (r Reserve) ApplyDeposit(grams decimal.Decimal) (Reserve, error) {
	if !grams.IsPositive() {
		return r, ErrInvalidQuantity
	}
	r.TotalCacaoStock = r.TotalCacaoStock.Add(grams)
	r.AvailableStock = r.AvailableStock.Add(grams)
	return r, nil
}

// IssueTokens backs newly credited tokens with available stock.
func (r Reserve) IssueTokens(grams decimal.Decimal) (Reserve, error) {
	if !grams.IsPositive() {
		return r, ErrInvalidQuantity
	}
	if r.AvailableStock.LessThan(grams) {
		return r, ErrInsufficientReserve
	}
	r.TokensIssued = r.TokensIssued.Add(grams)
	r.AvailableStock = r.AvailableStock.Sub(grams)
	return r, nil
}

// RetireTokens releases the backing of tokens leaving customer hands.
func (r Reserve) RetireTokens(grams decimal.Decimal) (Reserve, error) {
	if !grams.IsPositive() {
		return r, ErrInvalidQuantity
	}
	if r.TokensIssued.LessThan(grams) {
		return r, fmt.Errorf("%w: retiring %s of %s issued", ErrInvariantViolated, grams, r.TokensIssued)
	}
	r.TokensIssued = r.TokensIssued.Sub(grams)
	r.AvailableStock = r.AvailableStock.Add(grams)
	return r, nil
}

// ApplyWithdrawalOrSale removes grams from the vaults. Only stock that does
// not back issued tokens can leave.
func (r Reserve) ApplyWithdrawalOrSale(grams decimal.Decimal) (Reserve, error) {
	if !grams.IsPositive() {
		return r, ErrInvalidQuantity
	}
	if r.AvailableStock.LessThan(grams) {
		return r, ErrInsufficientReserve
	}
	r.TotalCacaoStock = r.TotalCacaoStock.Sub(grams)
	r.AvailableStock = r.AvailableStock.Sub(grams)
	return r, nil
}

// Snapshot returns a copy for reporting.
func (r Reserve) Snapshot() Reserve {
	return r
}

// BackingRatio is stock over issued tokens; zero when nothing is issued.
func (r Reserve) BackingRatio() decimal.Decimal {
	if r.TokensIssued.IsZero() {
		return decimal.Zero
	}
	return r.TotalCacaoStock.Div(r.TokensIssued).Round(4)
}

func (r Reserve) Validate() error {
	switch {
	case r.TotalCacaoStock.IsNegative(), r.TokensIssued.IsNegative(), r.AvailableStock.IsNegative():
		return fmt.Errorf("%w: negative quantity", ErrInvariantViolated)
	case r.TokensIssued.GreaterThan(r.TotalCacaoStock):
		return fmt.Errorf("%w: %s tokens issued against %s stock", ErrInvariantViolated, r.TokensIssued, r.TotalCacaoStock)
	case !r.AvailableStock.Equal(r.TotalCacaoStock.Sub(r.TokensIssued)):
		return fmt.Errorf("%w: available stock %s out of sync", ErrInvariantViolated, r.AvailableStock)
	}
	return nil
}

// Treasury accumulates fee revenue.
type Treasury struct {
	TotalFeesCollected decimal.Decimal `db:"total_fees_collected" json:"total_fees_collected"`
	TotalWithdrawn     decimal.Decimal `db:"total_withdrawn" json:"total_withdrawn"`
}

func (t Treasury) AvailableBalance() decimal.Decimal {
	return t.TotalFeesCollected.Sub(t.TotalWithdrawn)
}

// Collect adds a fee. Zero fees are a no-op.
func (t Treasury) Collect(fee decimal.Decimal) (Treasury, error) {
	if fee.IsNegative() {
		return t, ErrInvalidQuantity
	}
	t.TotalFeesCollected = t.TotalFeesCollected.Add(fee)
	return t, nil
}

func (t Treasury) Withdraw(amount decimal.Decimal) (Treasury, error) {
	if !amount.IsPositive() {
		return t, ErrInvalidQuantity
	}
	if t.AvailableBalance().LessThan(amount) {
		return t, ErrInsufficientTreasury
	}
	t.TotalWithdrawn = t.TotalWithdrawn.Add(amount)
	return t, nil
}

func (t Treasury) Validate() error {
	if t.TotalFeesCollected.IsNegative() || t.TotalWithdrawn.IsNegative() || t.AvailableBalance().IsNegative() {
		return fmt.Errorf("%w: treasury balance negative", ErrInvariantViolated)
	}
	return nil
}
