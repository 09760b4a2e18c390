package services

import (
	"context"

	"cacaowallet/internal/events"
	"cacaowallet/internal/models"
	"cacaowallet/internal/reserve"
	"cacaowallet/internal/store"

	"github.com/shopspring/decimal"
)

type WalletStore interface {
	GetByUser(ctx context.Context, userID string) (models.Wallet, error)
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (models.Wallet, error)
	UpdateBalances(ctx context.Context, tx store.Execer, wallet models.Wallet) error
	SumCacao(ctx context.Context) (decimal.Decimal, error)
	Reconcile(ctx context.Context, userID string) ([]store.WalletReconciliation, error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.Transaction, error)
	Resolve(ctx context.Context, tx store.Execer, input store.ResolveInput) (int64, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.PendingTransaction, error)
}

type PhysicalDepositStore interface {
	Create(ctx context.Context, tx store.Execer, deposit models.PhysicalDeposit) error
	GetByID(ctx context.Context, id string) (models.PhysicalDeposit, error)
	GetByTransactionForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.PhysicalDeposit, error)
	UpdateMeasurements(ctx context.Context, tx store.Execer, deposit models.PhysicalDeposit) (int64, error)
	RecordConversion(ctx context.Context, tx store.Execer, id, inspectorID string, factor, tokens decimal.Decimal) (int64, error)
	MarkInspected(ctx context.Context, tx store.Execer, id, inspectorID string) error
}

type CollectionCenterStore interface {
	GetByID(ctx context.Context, q store.Getter, id string) (models.CollectionCenter, error)
}

type ReserveStore interface {
	Get(ctx context.Context) (reserve.Reserve, error)
	GetForUpdate(ctx context.Context, tx store.Getter) (reserve.Reserve, error)
	Save(ctx context.Context, tx store.Execer, r reserve.Reserve) error
	GetTreasury(ctx context.Context) (reserve.Treasury, error)
	GetTreasuryForUpdate(ctx context.Context, tx store.Getter) (reserve.Treasury, error)
	SaveTreasury(ctx context.Context, tx store.Execer, t reserve.Treasury) error
	RecordTreasuryWithdrawal(ctx context.Context, tx store.Execer, w store.TreasuryWithdrawal) error
	RecordStockIntake(ctx context.Context, tx store.Execer, in store.StockIntake) error
}

type SystemConfigStore interface {
	Get(ctx context.Context, q store.Getter) (models.SystemConfig, error)
	Update(ctx context.Context, tx store.Execer, cfg models.SystemConfig) error
}

type PriceQuoteStore interface {
	Create(ctx context.Context, tx store.Execer, quote models.PriceQuote) error
	GetForUpdate(ctx context.Context, tx store.Getter, id, userID string) (models.PriceQuote, error)
	Consume(ctx context.Context, tx store.Execer, id string) (int64, error)
}

type PaymentMethodStore interface {
	GetByID(ctx context.Context, q store.Getter, id, userID string) (models.PaymentMethod, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type AdminStore interface {
	Authorized(ctx context.Context, userID, role string) (bool, error)
}

type BalanceHub interface {
	BroadcastWallet(wallet models.Wallet)
}

type EventBus interface {
	Publish(event events.Event)
}

// Stores groups the persistence dependencies of SettlementService.
type Stores struct {
	Wallets           WalletStore
	Ledger            LedgerStore
	Transactions      TransactionStore
	PhysicalDeposits  PhysicalDepositStore
	CollectionCenters CollectionCenterStore
	Reserve           ReserveStore
	SystemConfig      SystemConfigStore
	Quotes            PriceQuoteStore
	PaymentMethods    PaymentMethodStore
	Audit             AuditStore
}
