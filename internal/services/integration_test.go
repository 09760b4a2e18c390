//go:build integration

package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cacaowallet/internal/conversion"
	"cacaowallet/internal/db"
	"cacaowallet/internal/ledger"
	"cacaowallet/internal/migrate"
	"cacaowallet/internal/models"
	"cacaowallet/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testDB      *sqlx.DB
	pgContainer *postgres.PostgresContainer
)

// TestMain starts PostgreSQL unless TEST_DATABASE_URL points at one.
func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		var err error
		pgContainer, err = postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("cacao_test"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			fmt.Printf("Failed to start PostgreSQL container: %v\n", err)
			os.Exit(1)
		}
		dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Printf("Failed to get connection string: %v\n", err)
			terminate(ctx)
			os.Exit(1)
		}
	}

	var err error
	testDB, err = db.Connect(ctx, dsn, db.DefaultPoolConfig())
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		terminate(ctx)
		os.Exit(1)
	}
	if _, err := migrate.Up(ctx, testDB, filepath.Join("..", "..", "migrations")); err != nil {
		fmt.Printf("Failed to migrate database: %v\n", err)
		terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	_ = testDB.Close()
	terminate(ctx)
	os.Exit(code)
}

func terminate(ctx context.Context) {
	if pgContainer == nil {
		return
	}
	if err := pgContainer.Terminate(ctx); err != nil {
		fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
	}
}

type pgFixture struct {
	svc    *SettlementService
	oracle *Oracle
	stores Stores
	admins *store.AdminStore
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	ctx := context.Background()
	stores := Stores{
		Wallets:           store.NewWalletStore(testDB),
		Ledger:            store.NewLedgerStore(testDB),
		Transactions:      store.NewTransactionStore(testDB),
		PhysicalDeposits:  store.NewPhysicalDepositStore(testDB),
		CollectionCenters: store.NewCollectionCenterStore(testDB),
		Reserve:           store.NewReserveStore(testDB),
		SystemConfig:      store.NewSystemConfigStore(testDB),
		Quotes:            store.NewPriceQuoteStore(testDB),
		PaymentMethods:    store.NewPaymentMethodStore(testDB),
		Audit:             store.NewAuditStore(testDB),
	}
	_, err := store.NewSystemConfigStore(testDB).EnsureSeeded(ctx, models.SystemConfig{
		BuyPrice: dec("2.50"), SellPrice: dec("2.00"),
		BuyFeePercent: dec("1"), SellFeePercent: dec("2"),
		WithdrawalFee: dec("1.50"), MaintenanceFee: dec("3.00"),
	})
	require.NoError(t, err)

	admins := store.NewAdminStore(testDB)
	svc := NewSettlementService(db.NewTxRunner(testDB), stores, conversion.DefaultPolicy(), nil, nil)
	return &pgFixture{svc: svc, oracle: NewOracle(svc, admins), stores: stores, admins: admins}
}

func (f *pgFixture) user(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.NewUserStore(testDB).Create(ctx, testDB, id, "u-"+id[:8], id[:8]+"@example.com", "x"))
	require.NoError(t, store.NewWalletStore(testDB).Create(ctx, testDB, uuid.NewString(), id))
	return id
}

func (f *pgFixture) operator(t *testing.T) string {
	t.Helper()
	id := f.user(t)
	ctx := context.Background()
	require.NoError(t, f.admins.CreateAdmin(ctx, testDB, id, false, nil))
	require.NoError(t, f.admins.GrantRole(ctx, testDB, id, store.RoleCanSettle))
	return id
}

func (f *pgFixture) depositCacao(t *testing.T, userID, operatorID, grams string) {
	t.Helper()
	ctx := context.Background()
	created, _, err := f.svc.CreatePhysicalDeposit(ctx, PhysicalDepositRequest{
		UserID: userID, CollectionCenterID: "cc-quevedo",
		Measurements: conversion.Measurements{
			GrossWeight: dec(grams), Grade: models.GradeGrado1,
			Moisture: dec("8"), Fermentation: dec("60"), Impurities: dec("1.5"),
		},
	})
	require.NoError(t, err)
	_, err = f.oracle.Approve(ctx, created.ID, operatorID, "weighed")
	require.NoError(t, err)
}

func TestPGConcurrentApprovalsSettleOnce(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	userID := f.user(t)
	first, second := f.operator(t), f.operator(t)
	f.depositCacao(t, userID, first, "10000")

	pmID := uuid.NewString()
	require.NoError(t, store.NewPaymentMethodStore(testDB).Create(ctx, testDB, models.PaymentMethod{
		ID: pmID, UserID: userID, Type: models.PaymentBankAccount, Label: "payroll",
		Details: models.BankAccount{BankName: "Banco del Austro", AccountHolder: "Test Farmer", AccountNumber: "2200114455"},
	}))
	sell, err := f.svc.CreateSell(ctx, SellRequest{UserID: userID, CacaoAmount: dec("1000"), PaymentMethodID: pmID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, operator := range []string{first, second} {
		wg.Add(1)
		go func(i int, operator string) {
			defer wg.Done()
			_, errs[i] = f.oracle.Approve(ctx, sell.ID, operator, "paid")
		}(i, operator)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyResolved)
	}
	assert.Equal(t, 1, successes)

	wallet, err := f.stores.Wallets.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "8000", wallet.CacaoBalance.String())
	assert.True(t, wallet.CacaoHeld.IsZero())
}

func TestPGTokensStayBackedByReserve(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	userID := f.user(t)
	operatorID := f.operator(t)
	f.depositCacao(t, userID, operatorID, "5000")

	withdrawal, err := f.svc.CreateCacaoWithdrawal(ctx, CacaoWithdrawalRequest{UserID: userID, CacaoAmount: dec("500"), CollectionCenterID: "cc-machala"})
	require.NoError(t, err)
	_, err = f.oracle.Approve(ctx, withdrawal.ID, operatorID, "picked up")
	require.NoError(t, err)

	converted, err := f.svc.Convert(ctx, ConvertRequest{UserID: userID, Direction: DirectionCacaoToUSD, Amount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, converted.Status)

	report, err := f.svc.Reconcile(ctx, "")
	require.NoError(t, err)
	assert.True(t, report.Balanced, "tokens %s balances %s", report.TokensIssued, report.CacaoBalances)
	assert.Zero(t, report.Mismatched)

	r, err := f.svc.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Validate())
	sum, err := f.stores.Wallets.SumCacao(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Equal(r.TokensIssued))

	entries, err := store.NewLedgerStore(testDB).ListByTransaction(ctx, converted.ID)
	require.NoError(t, err)
	inputs := make([]store.LedgerEntryInput, 0, len(entries))
	for _, e := range entries {
		inputs = append(inputs, store.LedgerEntryInput{Asset: e.Asset, Amount: e.Amount})
	}
	require.NotEmpty(t, inputs)
	assert.NoError(t, ledger.EnsureBalanced(inputs))
}

func TestPGStockIntakeBacksBuy(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	userID := f.user(t)
	operatorID := f.operator(t)

	// Deposits issue every gram they add, so a fresh database has no free
	// stock until an intake. A reused TEST_DATABASE_URL may already hold some.
	before, err := f.svc.Reserve(ctx)
	require.NoError(t, err)
	if before.AvailableStock.IsZero() {
		_, err = f.svc.CreateBuy(ctx, BuyRequest{UserID: userID, FiatAmount: dec("10.00")})
		require.ErrorIs(t, err, ErrInsufficientReserve)
	}

	intake, after, err := f.svc.IntakeStock(ctx, StockIntakeRequest{Grams: dec("500"), CollectionCenterID: "cc-quevedo", OperatorID: operatorID})
	require.NoError(t, err)
	assert.Equal(t, "500", after.AvailableStock.Sub(before.AvailableStock).String())
	assert.True(t, after.TotalCacaoStock.Sub(before.TotalCacaoStock).Equal(dec("500")))

	rows, err := store.NewReserveStore(testDB).ListStockIntakes(ctx, 50, 0)
	require.NoError(t, err)
	found := false
	for _, row := range rows {
		found = found || row.ID == intake.ID
	}
	assert.True(t, found)

	buy, err := f.svc.CreateBuy(ctx, BuyRequest{UserID: userID, FiatAmount: dec("10.00")})
	require.NoError(t, err)
	resolved, err := f.oracle.Approve(ctx, buy.ID, operatorID, "wire received")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, resolved.Status)

	wallet, err := f.stores.Wallets.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "3.96", wallet.CacaoBalance.String())

	r, err := f.svc.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Validate())
	assert.Equal(t, "496.04", r.AvailableStock.Sub(before.AvailableStock).String())
	sum, err := f.stores.Wallets.SumCacao(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Equal(r.TokensIssued))
}
