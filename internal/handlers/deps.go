package handlers

import (
	"context"

	"cacaowallet/internal/models"
	"cacaowallet/internal/reserve"
	"cacaowallet/internal/services"
	"cacaowallet/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID string) error
	GetByUser(ctx context.Context, userID string) (models.Wallet, error)
	ListAllWithUsers(ctx context.Context, limit, offset int) ([]store.WalletWithUser, error)
	SetActive(ctx context.Context, tx store.Execer, userID string, active bool) (int64, error)
}

type TransactionStore interface {
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, txType models.TransactionType, limit, offset int) ([]models.Transaction, error)
	ListAll(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]models.Transaction, error)
}

type PhysicalDepositStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.PhysicalDeposit, error)
}

type CollectionCenterStore interface {
	List(ctx context.Context) ([]models.CollectionCenter, error)
}

type PaymentMethodStore interface {
	Create(ctx context.Context, tx store.Execer, pm models.PaymentMethod) error
	ListByUser(ctx context.Context, userID string) ([]models.PaymentMethod, error)
}

type TreasuryStore interface {
	ListTreasuryWithdrawals(ctx context.Context, limit, offset int) ([]store.TreasuryWithdrawal, error)
	ListStockIntakes(ctx context.Context, limit, offset int) ([]store.StockIntake, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	ListRoles(ctx context.Context, userID string) ([]string, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, entityType string, limit, offset int) ([]models.AuditLog, error)
}

// SettlementService is the part of services.SettlementService the HTTP layer
// drives.
type SettlementService interface {
	CreateBuy(ctx context.Context, req services.BuyRequest) (models.Transaction, error)
	CreateSell(ctx context.Context, req services.SellRequest) (models.Transaction, error)
	CreateFiatDeposit(ctx context.Context, req services.FiatDepositRequest) (models.Transaction, error)
	CreateFiatWithdrawal(ctx context.Context, req services.FiatWithdrawalRequest) (models.Transaction, error)
	CreateCacaoWithdrawal(ctx context.Context, req services.CacaoWithdrawalRequest) (models.Transaction, error)
	CreatePhysicalDeposit(ctx context.Context, req services.PhysicalDepositRequest) (models.Transaction, models.PhysicalDeposit, error)
	QuoteBuy(ctx context.Context, userID string, fiat decimal.Decimal) (models.PriceQuote, error)
	QuoteSell(ctx context.Context, grams decimal.Decimal) (services.SellEstimate, error)
	Convert(ctx context.Context, req services.ConvertRequest) (models.Transaction, error)
	ChargeMaintenanceFee(ctx context.Context, req services.MaintenanceFeeRequest) (models.Transaction, error)
	WithdrawTreasury(ctx context.Context, req services.TreasuryWithdrawalRequest) (store.TreasuryWithdrawal, reserve.Treasury, error)
	IntakeStock(ctx context.Context, req services.StockIntakeRequest) (store.StockIntake, reserve.Reserve, error)
	UpdatePrices(ctx context.Context, u services.PriceUpdate) (models.SystemConfig, error)
	Prices(ctx context.Context) (models.SystemConfig, error)
	Reserve(ctx context.Context) (reserve.Reserve, error)
	Treasury(ctx context.Context) (reserve.Treasury, error)
	Reconcile(ctx context.Context, userID string) (services.ReconcileReport, error)
}

type SettlementOracle interface {
	ListPending(ctx context.Context, operatorID string, limit, offset int) ([]models.PendingTransaction, error)
	Approve(ctx context.Context, transactionID, operatorID, notes string) (models.Transaction, error)
	Reject(ctx context.Context, transactionID, operatorID, notes string) (models.Transaction, error)
	VerifyPhysicalDeposit(ctx context.Context, req services.VerifyRequest) (models.Transaction, models.PhysicalDeposit, error)
}
