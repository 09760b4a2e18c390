// Package ledger is the only code path that changes wallet balances. Every
// method runs on the caller's database transaction, locks the wallet row and
// writes balanced ledger entries next to the balance change.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"cacaowallet/internal/models"
	"cacaowallet/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Asset string

const (
	AssetFiat  Asset = "USD"
	AssetCacao Asset = "CACAO"
)

// System accounts are the counterparties of wallet movements.
const (
	AccountExternalFiat  = "SYSTEM:EXTERNAL_USD"
	AccountExternalCacao = "SYSTEM:EXTERNAL_CACAO"
	AccountReserve       = "SYSTEM:RESERVE"
	AccountTreasury      = "SYSTEM:TREASURY"
	AccountExchange      = "SYSTEM:EXCHANGE"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrWalletInactive    = errors.New("wallet is inactive")
	ErrUnbalanced        = errors.New("ledger entries are not balanced")
	ErrHoldMismatch      = errors.New("held amount is smaller than the amount to settle")
)

type WalletStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (models.Wallet, error)
	UpdateBalances(ctx context.Context, tx store.Execer, wallet models.Wallet) error
}

type EntryStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
}

type Ledger struct {
	wallets WalletStore
	entries EntryStore
}

func New(wallets WalletStore, entries EntryStore) *Ledger {
	return &Ledger{wallets: wallets, entries: entries}
}

// Movement describes one side of a wallet change. Counterparty is the system
// account that takes the opposite entry.
type Movement struct {
	TransactionID string
	Asset         Asset
	Amount        decimal.Decimal
	Counterparty  string
	Description   string
}

func (m Movement) validate() error {
	if !m.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if m.Asset != AssetFiat && m.Asset != AssetCacao {
		return fmt.Errorf("unknown asset %q", m.Asset)
	}
	return nil
}

func (l *Ledger) Credit(ctx context.Context, tx store.Tx, userID string, m Movement) (models.Wallet, error) {
	if err := m.validate(); err != nil {
		return models.Wallet{}, err
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	next := credit(wallet, m.Asset, m.Amount)
	return l.commit(ctx, tx, next, pair(wallet.ID, m, m.Amount))
}

// Debit removes available (unheld) funds.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, userID string, m Movement) (models.Wallet, error) {
	if err := m.validate(); err != nil {
		return models.Wallet{}, err
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	if !wallet.IsActive {
		return models.Wallet{}, ErrWalletInactive
	}
	next, err := debit(wallet, m.Asset, m.Amount)
	if err != nil {
		return models.Wallet{}, err
	}
	return l.commit(ctx, tx, next, pair(wallet.ID, m, m.Amount.Neg()))
}

// Hold reserves available funds for a pending transaction. Holds do not
// move value, so no entries are written.
func (l *Ledger) Hold(ctx context.Context, tx store.Tx, userID string, asset Asset, amount decimal.Decimal) (models.Wallet, error) {
	if !amount.IsPositive() {
		return models.Wallet{}, ErrInvalidAmount
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	if !wallet.IsActive {
		return models.Wallet{}, ErrWalletInactive
	}
	next, err := hold(wallet, asset, amount)
	if err != nil {
		return models.Wallet{}, err
	}
	return l.commit(ctx, tx, next, nil)
}

// Release returns held funds to the available balance.
func (l *Ledger) Release(ctx context.Context, tx store.Tx, userID string, asset Asset, amount decimal.Decimal) (models.Wallet, error) {
	if !amount.IsPositive() {
		return models.Wallet{}, ErrInvalidAmount
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	next, err := release(wallet, asset, amount)
	if err != nil {
		return models.Wallet{}, err
	}
	return l.commit(ctx, tx, next, nil)
}

// FinalizeHold turns a hold into a debit.
func (l *Ledger) FinalizeHold(ctx context.Context, tx store.Tx, userID string, m Movement) (models.Wallet, error) {
	if err := m.validate(); err != nil {
		return models.Wallet{}, err
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	next, err := release(wallet, m.Asset, m.Amount)
	if err != nil {
		return models.Wallet{}, err
	}
	next, err = debit(next, m.Asset, m.Amount)
	if err != nil {
		return models.Wallet{}, err
	}
	return l.commit(ctx, tx, next, pair(wallet.ID, m, m.Amount.Neg()))
}

// TransferBothAtomically debits one asset and credits the other on the same
// wallet under a single row lock. Used by instant conversions.
func (l *Ledger) TransferBothAtomically(ctx context.Context, tx store.Tx, userID string, out, in Movement) (models.Wallet, error) {
	if err := out.validate(); err != nil {
		return models.Wallet{}, err
	}
	if err := in.validate(); err != nil {
		return models.Wallet{}, err
	}
	if out.Asset == in.Asset {
		return models.Wallet{}, fmt.Errorf("conversion needs two assets, got %s twice", out.Asset)
	}
	wallet, err := l.wallets.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	if !wallet.IsActive {
		return models.Wallet{}, ErrWalletInactive
	}
	next, err := debit(wallet, out.Asset, out.Amount)
	if err != nil {
		return models.Wallet{}, err
	}
	next = credit(next, in.Asset, in.Amount)
	entries := append(pair(wallet.ID, out, out.Amount.Neg()), pair(wallet.ID, in, in.Amount)...)
	return l.commit(ctx, tx, next, entries)
}

// PostSystem records a movement between two system accounts, such as a fee
// paid from outside into the treasury.
func (l *Ledger) PostSystem(ctx context.Context, tx store.Execer, transactionID string, asset Asset, amount decimal.Decimal, from, to, description string) error {
	if !amount.IsPositive() {
		return nil
	}
	entries := []store.LedgerEntryInput{
		{ID: uuid.NewString(), TransactionID: transactionID, AccountID: from, Asset: string(asset), Amount: amount.Neg(), Description: description},
		{ID: uuid.NewString(), TransactionID: transactionID, AccountID: to, Asset: string(asset), Amount: amount, Description: description},
	}
	if err := EnsureBalanced(entries); err != nil {
		return err
	}
	return l.entries.InsertEntries(ctx, tx, entries)
}

func (l *Ledger) commit(ctx context.Context, tx store.Tx, wallet models.Wallet, entries []store.LedgerEntryInput) (models.Wallet, error) {
	if err := checkWallet(wallet); err != nil {
		return models.Wallet{}, err
	}
	if err := l.wallets.UpdateBalances(ctx, tx, wallet); err != nil {
		return models.Wallet{}, err
	}
	if len(entries) > 0 {
		if err := EnsureBalanced(entries); err != nil {
			return models.Wallet{}, err
		}
		if err := l.entries.InsertEntries(ctx, tx, entries); err != nil {
			return models.Wallet{}, err
		}
	}
	return wallet, nil
}

// pair builds the wallet entry of signed amount and its counterparty entry.
func pair(walletID string, m Movement, signed decimal.Decimal) []store.LedgerEntryInput {
	return []store.LedgerEntryInput{
		{ID: uuid.NewString(), TransactionID: m.TransactionID, AccountID: walletID, Asset: string(m.Asset), Amount: signed, Description: m.Description},
		{ID: uuid.NewString(), TransactionID: m.TransactionID, AccountID: m.Counterparty, Asset: string(m.Asset), Amount: signed.Neg(), Description: m.Description},
	}
}

// EnsureBalanced checks that entries sum to zero per asset.
func EnsureBalanced(entries []store.LedgerEntryInput) error {
	sums := map[string]decimal.Decimal{}
	for _, entry := range entries {
		sums[entry.Asset] = sums[entry.Asset].Add(entry.Amount)
	}
	for asset, sum := range sums {
		if !sum.IsZero() {
			return fmt.Errorf("%w: %s off by %s", ErrUnbalanced, asset, sum)
		}
	}
	return nil
}
