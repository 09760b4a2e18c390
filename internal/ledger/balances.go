package ledger

import (
	"fmt"

	"cacaowallet/internal/models"

	"github.com/shopspring/decimal"
)

func credit(w models.Wallet, asset Asset, amount decimal.Decimal) models.Wallet {
	switch asset {
	case AssetFiat:
		w.FiatBalance = w.FiatBalance.Add(amount)
	case AssetCacao:
		w.CacaoBalance = w.CacaoBalance.Add(amount)
	}
	return w
}

func debit(w models.Wallet, asset Asset, amount decimal.Decimal) (models.Wallet, error) {
	switch asset {
	case AssetFiat:
		if w.FiatAvailable().LessThan(amount) {
			return w, ErrInsufficientFunds
		}
		w.FiatBalance = w.FiatBalance.Sub(amount)
	case AssetCacao:
		if w.CacaoAvailable().LessThan(amount) {
			return w, ErrInsufficientFunds
		}
		w.CacaoBalance = w.CacaoBalance.Sub(amount)
	}
	return w, nil
}

func hold(w models.Wallet, asset Asset, amount decimal.Decimal) (models.Wallet, error) {
	switch asset {
	case AssetFiat:
		if w.FiatAvailable().LessThan(amount) {
			return w, ErrInsufficientFunds
		}
		w.FiatHeld = w.FiatHeld.Add(amount)
	case AssetCacao:
		if w.CacaoAvailable().LessThan(amount) {
			return w, ErrInsufficientFunds
		}
		w.CacaoHeld = w.CacaoHeld.Add(amount)
	default:
		return w, fmt.Errorf("unknown asset %q", asset)
	}
	return w, nil
}

func release(w models.Wallet, asset Asset, amount decimal.Decimal) (models.Wallet, error) {
	switch asset {
	case AssetFiat:
		if w.FiatHeld.LessThan(amount) {
			return w, ErrHoldMismatch
		}
		w.FiatHeld = w.FiatHeld.Sub(amount)
	case AssetCacao:
		if w.CacaoHeld.LessThan(amount) {
			return w, ErrHoldMismatch
		}
		w.CacaoHeld = w.CacaoHeld.Sub(amount)
	default:
		return w, fmt.Errorf("unknown asset %q", asset)
	}
	return w, nil
}

// checkWallet mirrors the table constraints: 0 <= held <= balance.
func checkWallet(w models.Wallet) error {
	if w.FiatHeld.IsNegative() || w.CacaoHeld.IsNegative() {
		return fmt.Errorf("wallet %s: negative hold", w.ID)
	}
	if w.FiatBalance.LessThan(w.FiatHeld) || w.CacaoBalance.LessThan(w.CacaoHeld) {
		return ErrInsufficientFunds
	}
	return nil
}
