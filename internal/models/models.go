package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Wallet is the per-user balance record. Held amounts are reserved for
// pending withdrawals and sales and are not spendable.
type Wallet struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	FiatBalance  decimal.Decimal `db:"fiat_balance" json:"fiat_balance"`
	FiatHeld     decimal.Decimal `db:"fiat_held" json:"fiat_held"`
	CacaoBalance decimal.Decimal `db:"cacao_balance" json:"cacao_balance"`
	CacaoHeld    decimal.Decimal `db:"cacao_held" json:"cacao_held"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

func (w Wallet) FiatAvailable() decimal.Decimal {
	return w.FiatBalance.Sub(w.FiatHeld)
}

func (w Wallet) CacaoAvailable() decimal.Decimal {
	return w.CacaoBalance.Sub(w.CacaoHeld)
}

type TransactionType string

const (
	TypeBuy               TransactionType = "BUY"
	TypeSell              TransactionType = "SELL"
	TypeDepositCacao      TransactionType = "DEPOSIT_CACAO"
	TypeWithdrawCacao     TransactionType = "WITHDRAW_CACAO"
	TypeDepositUSD        TransactionType = "DEPOSIT_USD"
	TypeWithdrawUSD       TransactionType = "WITHDRAW_USD"
	TypeMaintenanceFee    TransactionType = "MAINTENANCE_FEE"
	TypeConvertCacaoToUSD TransactionType = "CONVERT_CACAO_TO_USD"
	TypeConvertUSDToCacao TransactionType = "CONVERT_USD_TO_CACAO"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeBuy, TypeSell, TypeDepositCacao, TypeWithdrawCacao, TypeDepositUSD,
		TypeWithdrawUSD, TypeMaintenanceFee, TypeConvertCacaoToUSD, TypeConvertUSDToCacao:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusRejected  TransactionStatus = "REJECTED"
)

func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Transaction records one attempted value movement. Amount semantics depend
// on Type: FiatAmount is the fiat paid in or paid out, CacaoAmount the grams
// credited, held or debited, FeeAmount the fee due to the treasury.
type Transaction struct {
	ID               string              `db:"id" json:"id"`
	UserID           string              `db:"user_id" json:"user_id"`
	Type             TransactionType     `db:"type" json:"type"`
	Status           TransactionStatus   `db:"status" json:"status"`
	FiatAmount       decimal.Decimal     `db:"fiat_amount" json:"fiat_amount"`
	CacaoAmount      decimal.Decimal     `db:"cacao_amount" json:"cacao_amount"`
	FeeAmount        decimal.Decimal     `db:"fee_amount" json:"fee_amount"`
	PriceAtExecution decimal.NullDecimal `db:"price_at_execution" json:"price_at_execution"`
	Reference        *string             `db:"reference" json:"reference,omitempty"`
	PaymentMethodID  *string             `db:"payment_method_id" json:"payment_method_id,omitempty"`
	QuoteID          *string             `db:"quote_id" json:"quote_id,omitempty"`
	Notes            *string             `db:"notes" json:"notes,omitempty"`
	ResolvedBy       *string             `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time          `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

// PendingTransaction is a pending transaction joined with the context an
// operator needs to decide on it.
type PendingTransaction struct {
	Transaction
	Username          string  `db:"username" json:"username"`
	Email             string  `db:"email" json:"email"`
	PaymentMethodType *string `db:"payment_method_type" json:"payment_method_type,omitempty"`
	PaymentMethodData *string `db:"payment_method_details" json:"payment_method_details,omitempty"`
	PhysicalDepositID *string `db:"physical_deposit_id" json:"physical_deposit_id,omitempty"`
}

type QualityGrade string

const (
	GradePremium QualityGrade = "PREMIUM"
	GradeGrado1  QualityGrade = "GRADO_1"
	GradeGrado2  QualityGrade = "GRADO_2"
)

type PhysicalDeposit struct {
	ID                 string              `db:"id" json:"id"`
	TransactionID      string              `db:"transaction_id" json:"transaction_id"`
	UserID             string              `db:"user_id" json:"user_id"`
	CollectionCenterID string              `db:"collection_center_id" json:"collection_center_id"`
	GrossWeight        decimal.Decimal     `db:"gross_weight" json:"gross_weight"`
	QualityGrade       QualityGrade        `db:"quality_grade" json:"quality_grade"`
	MoistureContent    decimal.Decimal     `db:"moisture_content" json:"moisture_content"`
	FermentationGrade  decimal.Decimal     `db:"fermentation_grade" json:"fermentation_grade"`
	ImpuritiesContent  decimal.Decimal     `db:"impurities_content" json:"impurities_content"`
	ConversionFactor   decimal.NullDecimal `db:"conversion_factor" json:"conversion_factor"`
	FinalTokensIssued  decimal.NullDecimal `db:"final_tokens_issued" json:"final_tokens_issued"`
	InspectorID        *string             `db:"inspector_id" json:"inspector_id,omitempty"`
	VerifiedAt         *time.Time          `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
}

type CollectionCenter struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Location  string          `db:"location" json:"location"`
	Capacity  decimal.Decimal `db:"capacity" json:"capacity"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// SystemConfig holds the prices and fees in force. Prices are fiat per gram.
type SystemConfig struct {
	BuyPrice       decimal.Decimal `db:"buy_price" json:"buy_price"`
	SellPrice      decimal.Decimal `db:"sell_price" json:"sell_price"`
	BuyFeePercent  decimal.Decimal `db:"buy_fee_percent" json:"buy_fee_percent"`
	SellFeePercent decimal.Decimal `db:"sell_fee_percent" json:"sell_fee_percent"`
	WithdrawalFee  decimal.Decimal `db:"withdrawal_fee" json:"withdrawal_fee"`
	MaintenanceFee decimal.Decimal `db:"maintenance_fee" json:"maintenance_fee"`
	UpdatedBy      *string         `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

type PriceQuote struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	FiatAmount  decimal.Decimal `db:"fiat_amount" json:"fiat_amount"`
	FeeAmount   decimal.Decimal `db:"fee_amount" json:"fee_amount"`
	CacaoAmount decimal.Decimal `db:"cacao_amount" json:"cacao_amount"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ExpiresAt   time.Time       `db:"expires_at" json:"expires_at"`
	ConsumedAt  *time.Time      `db:"consumed_at" json:"consumed_at,omitempty"`
}

type LedgerEntry struct {
	ID            string          `db:"id" json:"id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	AccountID     string          `db:"account_id" json:"account_id"`
	Asset         string          `db:"asset" json:"asset"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Description   string          `db:"description" json:"description"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	ActorUserID *string   `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Data        string    `db:"data" json:"data"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
