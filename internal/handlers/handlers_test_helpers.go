package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cacaowallet/internal/auth"
	"cacaowallet/internal/config"
	"cacaowallet/internal/models"
	"cacaowallet/internal/reserve"
	"cacaowallet/internal/services"
	"cacaowallet/internal/store"
	"cacaowallet/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn    func(ctx context.Context, email string) (models.User, error)
	getByUsernameFn func(ctx context.Context, username string) (models.User, error)
	getByIDFn       func(ctx context.Context, userID string) (models.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	if s.getByUsernameFn == nil {
		return models.User{}, nil
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubWalletStore struct {
	createFn    func(ctx context.Context, tx store.Execer, id, userID string) error
	getByUserFn func(ctx context.Context, userID string) (models.Wallet, error)
	listAllFn   func(ctx context.Context, limit, offset int) ([]store.WalletWithUser, error)
	setActiveFn func(ctx context.Context, tx store.Execer, userID string, active bool) (int64, error)
}

func (s stubWalletStore) Create(ctx context.Context, tx store.Execer, id, userID string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, userID)
}

func (s stubWalletStore) GetByUser(ctx context.Context, userID string) (models.Wallet, error) {
	if s.getByUserFn == nil {
		return models.Wallet{}, nil
	}
	return s.getByUserFn(ctx, userID)
}

func (s stubWalletStore) ListAllWithUsers(ctx context.Context, limit, offset int) ([]store.WalletWithUser, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

func (s stubWalletStore) SetActive(ctx context.Context, tx store.Execer, userID string, active bool) (int64, error) {
	if s.setActiveFn == nil {
		return 1, nil
	}
	return s.setActiveFn(ctx, tx, userID, active)
}

type stubTransactionStore struct {
	getByIDFn    func(ctx context.Context, id string) (models.Transaction, error)
	listByUserFn func(ctx context.Context, userID string, txType models.TransactionType, limit, offset int) ([]models.Transaction, error)
	listAllFn    func(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]models.Transaction, error)
}

func (s stubTransactionStore) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	if s.getByIDFn == nil {
		return models.Transaction{}, nil
	}
	return s.getByIDFn(ctx, id)
}

func (s stubTransactionStore) ListByUser(ctx context.Context, userID string, txType models.TransactionType, limit, offset int) ([]models.Transaction, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, txType, limit, offset)
}

func (s stubTransactionStore) ListAll(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]models.Transaction, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, status, limit, offset)
}

type stubPhysicalDepositStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]models.PhysicalDeposit, error)
}

func (s stubPhysicalDepositStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.PhysicalDeposit, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubCollectionCenterStore struct {
	listFn func(ctx context.Context) ([]models.CollectionCenter, error)
}

func (s stubCollectionCenterStore) List(ctx context.Context) ([]models.CollectionCenter, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

type stubPaymentMethodStore struct {
	createFn     func(ctx context.Context, tx store.Execer, pm models.PaymentMethod) error
	listByUserFn func(ctx context.Context, userID string) ([]models.PaymentMethod, error)
}

func (s stubPaymentMethodStore) Create(ctx context.Context, tx store.Execer, pm models.PaymentMethod) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, pm)
}

func (s stubPaymentMethodStore) ListByUser(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

type stubTreasuryStore struct {
	listFn        func(ctx context.Context, limit, offset int) ([]store.TreasuryWithdrawal, error)
	listIntakesFn func(ctx context.Context, limit, offset int) ([]store.StockIntake, error)
}

func (s stubTreasuryStore) ListTreasuryWithdrawals(ctx context.Context, limit, offset int) ([]store.TreasuryWithdrawal, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

func (s stubTreasuryStore) ListStockIntakes(ctx context.Context, limit, offset int) ([]store.StockIntake, error) {
	if s.listIntakesFn == nil {
		return nil, nil
	}
	return s.listIntakesFn(ctx, limit, offset)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	listRolesFn   func(ctx context.Context, userID string) ([]string, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) ListRoles(ctx context.Context, userID string) ([]string, error) {
	if s.listRolesFn == nil {
		return nil, nil
	}
	return s.listRolesFn(ctx, userID)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, entityType string, limit, offset int) ([]models.AuditLog, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, entityType string, limit, offset int) ([]models.AuditLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, entityType, limit, offset)
}

type stubSettlement struct {
	createBuyFn       func(ctx context.Context, req services.BuyRequest) (models.Transaction, error)
	createSellFn      func(ctx context.Context, req services.SellRequest) (models.Transaction, error)
	fiatDepositFn     func(ctx context.Context, req services.FiatDepositRequest) (models.Transaction, error)
	fiatWithdrawalFn  func(ctx context.Context, req services.FiatWithdrawalRequest) (models.Transaction, error)
	cacaoWithdrawalFn func(ctx context.Context, req services.CacaoWithdrawalRequest) (models.Transaction, error)
	physicalFn        func(ctx context.Context, req services.PhysicalDepositRequest) (models.Transaction, models.PhysicalDeposit, error)
	quoteBuyFn        func(ctx context.Context, userID string, fiat decimal.Decimal) (models.PriceQuote, error)
	quoteSellFn       func(ctx context.Context, grams decimal.Decimal) (services.SellEstimate, error)
	convertFn         func(ctx context.Context, req services.ConvertRequest) (models.Transaction, error)
	maintenanceFn     func(ctx context.Context, req services.MaintenanceFeeRequest) (models.Transaction, error)
	withdrawTreasury  func(ctx context.Context, req services.TreasuryWithdrawalRequest) (store.TreasuryWithdrawal, reserve.Treasury, error)
	intakeStockFn     func(ctx context.Context, req services.StockIntakeRequest) (store.StockIntake, reserve.Reserve, error)
	updatePricesFn    func(ctx context.Context, u services.PriceUpdate) (models.SystemConfig, error)
	pricesFn          func(ctx context.Context) (models.SystemConfig, error)
	reserveFn         func(ctx context.Context) (reserve.Reserve, error)
	treasuryFn        func(ctx context.Context) (reserve.Treasury, error)
	reconcileFn       func(ctx context.Context, userID string) (services.ReconcileReport, error)
}

func (s stubSettlement) CreateBuy(ctx context.Context, req services.BuyRequest) (models.Transaction, error) {
	if s.createBuyFn == nil {
		return models.Transaction{}, nil
	}
	return s.createBuyFn(ctx, req)
}

func (s stubSettlement) CreateSell(ctx context.Context, req services.SellRequest) (models.Transaction, error) {
	if s.createSellFn == nil {
		return models.Transaction{}, nil
	}
	return s.createSellFn(ctx, req)
}

func (s stubSettlement) CreateFiatDeposit(ctx context.Context, req services.FiatDepositRequest) (models.Transaction, error) {
	if s.fiatDepositFn == nil {
		return models.Transaction{}, nil
	}
	return s.fiatDepositFn(ctx, req)
}

func (s stubSettlement) CreateFiatWithdrawal(ctx context.Context, req services.FiatWithdrawalRequest) (models.Transaction, error) {
	if s.fiatWithdrawalFn == nil {
		return models.Transaction{}, nil
	}
	return s.fiatWithdrawalFn(ctx, req)
}

func (s stubSettlement) CreateCacaoWithdrawal(ctx context.Context, req services.CacaoWithdrawalRequest) (models.Transaction, error) {
	if s.cacaoWithdrawalFn == nil {
		return models.Transaction{}, nil
	}
	return s.cacaoWithdrawalFn(ctx, req)
}

func (s stubSettlement) CreatePhysicalDeposit(ctx context.Context, req services.PhysicalDepositRequest) (models.Transaction, models.PhysicalDeposit, error) {
	if s.physicalFn == nil {
		return models.Transaction{}, models.PhysicalDeposit{}, nil
	}
	return s.physicalFn(ctx, req)
}

func (s stubSettlement) QuoteBuy(ctx context.Context, userID string, fiat decimal.Decimal) (models.PriceQuote, error) {
	if s.quoteBuyFn == nil {
		return models.PriceQuote{}, nil
	}
	return s.quoteBuyFn(ctx, userID, fiat)
}

func (s stubSettlement) QuoteSell(ctx context.Context, grams decimal.Decimal) (services.SellEstimate, error) {
	if s.quoteSellFn == nil {
		return services.SellEstimate{}, nil
	}
	return s.quoteSellFn(ctx, grams)
}

func (s stubSettlement) Convert(ctx context.Context, req services.ConvertRequest) (models.Transaction, error) {
	if s.convertFn == nil {
		return models.Transaction{}, nil
	}
	return s.convertFn(ctx, req)
}

func (s stubSettlement) ChargeMaintenanceFee(ctx context.Context, req services.MaintenanceFeeRequest) (models.Transaction, error) {
	if s.maintenanceFn == nil {
		return models.Transaction{}, nil
	}
	return s.maintenanceFn(ctx, req)
}

func (s stubSettlement) WithdrawTreasury(ctx context.Context, req services.TreasuryWithdrawalRequest) (store.TreasuryWithdrawal, reserve.Treasury, error) {
	if s.withdrawTreasury == nil {
		return store.TreasuryWithdrawal{}, reserve.Treasury{}, nil
	}
	return s.withdrawTreasury(ctx, req)
}

func (s stubSettlement) IntakeStock(ctx context.Context, req services.StockIntakeRequest) (store.StockIntake, reserve.Reserve, error) {
	if s.intakeStockFn == nil {
		return store.StockIntake{}, reserve.Reserve{}, nil
	}
	return s.intakeStockFn(ctx, req)
}

func (s stubSettlement) UpdatePrices(ctx context.Context, u services.PriceUpdate) (models.SystemConfig, error) {
	if s.updatePricesFn == nil {
		return models.SystemConfig{}, nil
	}
	return s.updatePricesFn(ctx, u)
}

func (s stubSettlement) Prices(ctx context.Context) (models.SystemConfig, error) {
	if s.pricesFn == nil {
		return models.SystemConfig{}, nil
	}
	return s.pricesFn(ctx)
}

func (s stubSettlement) Reserve(ctx context.Context) (reserve.Reserve, error) {
	if s.reserveFn == nil {
		return reserve.Reserve{}, nil
	}
	return s.reserveFn(ctx)
}

func (s stubSettlement) Treasury(ctx context.Context) (reserve.Treasury, error) {
	if s.treasuryFn == nil {
		return reserve.Treasury{}, nil
	}
	return s.treasuryFn(ctx)
}

func (s stubSettlement) Reconcile(ctx context.Context, userID string) (services.ReconcileReport, error) {
	if s.reconcileFn == nil {
		return services.ReconcileReport{}, nil
	}
	return s.reconcileFn(ctx, userID)
}

type stubOracle struct {
	listPendingFn func(ctx context.Context, operatorID string, limit, offset int) ([]models.PendingTransaction, error)
	approveFn     func(ctx context.Context, transactionID, operatorID, notes string) (models.Transaction, error)
	rejectFn      func(ctx context.Context, transactionID, operatorID, notes string) (models.Transaction, error)
	verifyFn      func(ctx context.Context, req services.VerifyRequest) (models.Transaction, models.PhysicalDeposit, error)
}

func (s stubOracle) ListPending(ctx context.Context, operatorID string, limit, offset int) ([]models.PendingTransaction, error) {
	if s.listPendingFn == nil {
		return nil, nil
	}
	return s.listPendingFn(ctx, operatorID, limit, offset)
}

func (s stubOracle) Approve(ctx context.Context, transactionID, operatorID, notes string) (models.Transaction, error) {
	if s.approveFn == nil {
		return models.Transaction{}, nil
	}
	return s.approveFn(ctx, transactionID, operatorID, notes)
}

func (s stubOracle) Reject(ctx context.Context, transactionID, operatorID, notes string) (models.Transaction, error) {
	if s.rejectFn == nil {
		return models.Transaction{}, nil
	}
	return s.rejectFn(ctx, transactionID, operatorID, notes)
}

func (s stubOracle) VerifyPhysicalDeposit(ctx context.Context, req services.VerifyRequest) (models.Transaction, models.PhysicalDeposit, error) {
	if s.verifyFn == nil {
		return models.Transaction{}, models.PhysicalDeposit{}, nil
	}
	return s.verifyFn(ctx, req)
}

// newTestHandler fills every collaborator left nil in d with an empty stub.
func newTestHandler(d Deps) *Handler {
	d.Config = config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	if d.TxRunner == nil {
		d.TxRunner = fakeTxRunner{}
	}
	if d.Users == nil {
		d.Users = stubUserStore{}
	}
	if d.Wallets == nil {
		d.Wallets = stubWalletStore{}
	}
	if d.Transactions == nil {
		d.Transactions = stubTransactionStore{}
	}
	if d.PhysicalDeposits == nil {
		d.PhysicalDeposits = stubPhysicalDepositStore{}
	}
	if d.CollectionCenters == nil {
		d.CollectionCenters = stubCollectionCenterStore{}
	}
	if d.PaymentMethods == nil {
		d.PaymentMethods = stubPaymentMethodStore{}
	}
	if d.Treasury == nil {
		d.Treasury = stubTreasuryStore{}
	}
	if d.Admin == nil {
		d.Admin = stubAdminStore{}
	}
	if d.Audit == nil {
		d.Audit = stubAuditStore{}
	}
	if d.Settlement == nil {
		d.Settlement = stubSettlement{}
	}
	if d.Oracle == nil {
		d.Oracle = stubOracle{}
	}
	if d.Hub == nil {
		d.Hub = websocket.NewHub()
	}
	return New(d)
}

// serve sends the request through the full router as userID. An empty
// userID sends no token.
func serve(t *testing.T, h *Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := auth.GenerateToken("secret", userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func superAdmin() stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, bool, error) { return true, true, nil },
	}
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
