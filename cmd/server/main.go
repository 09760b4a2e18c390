package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cacaowallet/internal/config"
	"cacaowallet/internal/conversion"
	"cacaowallet/internal/db"
	"cacaowallet/internal/events"
	"cacaowallet/internal/handlers"
	"cacaowallet/internal/logger"
	"cacaowallet/internal/models"
	"cacaowallet/internal/money"
	"cacaowallet/internal/services"
	"cacaowallet/internal/store"
	"cacaowallet/internal/websocket"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"env": cfg.AppEnv},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolFromConfig(cfg.Database))
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	policy, err := conversion.LoadPolicy(cfg.Grading.PolicyPath)
	if err != nil {
		logger.Fatal("failed to load grading policy", zap.Error(err), zap.String("path", cfg.Grading.PolicyPath))
	}

	users := store.NewUserStore(database)
	wallets := store.NewWalletStore(database)
	ledgerStore := store.NewLedgerStore(database)
	transactions := store.NewTransactionStore(database)
	physicalDeposits := store.NewPhysicalDepositStore(database)
	centers := store.NewCollectionCenterStore(database)
	reserveStore := store.NewReserveStore(database)
	systemConfig := store.NewSystemConfigStore(database)
	quotes := store.NewPriceQuoteStore(database)
	paymentMethods := store.NewPaymentMethodStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)

	seed, err := pricingSeed(cfg.Pricing)
	if err != nil {
		logger.Fatal("invalid pricing configuration", zap.Error(err))
	}
	seeded, err := systemConfig.EnsureSeeded(ctx, seed)
	if err != nil {
		logger.Fatal("failed to seed system config", zap.Error(err))
	}
	if seeded {
		logger.Info("Seeded system config from pricing defaults")
	}

	bus := events.NewBus()
	if cfg.NATS.URL != "" {
		publisher, err := events.NewJetStreamPublisher(ctx, events.JetStreamConfig{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			ConnectionName: cfg.NATS.ConnectionName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
		})
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer publisher.Close()
		go events.Forward(ctx, bus, publisher)
	}

	hub := websocket.NewHub()
	go hub.RunOperatorFeed(ctx, bus)

	settlement := services.NewSettlementService(txRunner, services.Stores{
		Wallets:           wallets,
		Ledger:            ledgerStore,
		Transactions:      transactions,
		PhysicalDeposits:  physicalDeposits,
		CollectionCenters: centers,
		Reserve:           reserveStore,
		SystemConfig:      systemConfig,
		Quotes:            quotes,
		PaymentMethods:    paymentMethods,
		Audit:             audit,
	}, policy, hub, bus, services.WithQuoteTTL(time.Duration(cfg.Pricing.QuoteTTLSeconds)*time.Second))
	oracle := services.NewOracle(settlement, admin)

	handler := handlers.New(handlers.Deps{
		TxRunner:          txRunner,
		Config:            cfg,
		Users:             users,
		Wallets:           wallets,
		Transactions:      transactions,
		PhysicalDeposits:  physicalDeposits,
		CollectionCenters: centers,
		PaymentMethods:    paymentMethods,
		Treasury:          reserveStore,
		Admin:             admin,
		Audit:             audit,
		Settlement:        settlement,
		Oracle:            oracle,
		Hub:               hub,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Cacao wallet API listening", zap.String("addr", server.Addr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, zap.String("message", "shutdown error"))
	}
}

// pricingSeed turns the configured defaults into the initial system config.
func pricingSeed(p config.PricingConfig) (models.SystemConfig, error) {
	var seed models.SystemConfig
	fields := []struct {
		name   string
		raw    string
		places int32
		dest   *decimal.Decimal
	}{
		{"buy_price", p.BuyPrice, money.PricePlaces, &seed.BuyPrice},
		{"sell_price", p.SellPrice, money.PricePlaces, &seed.SellPrice},
		{"buy_fee_percent", p.BuyFeePercent, money.PercentPlaces, &seed.BuyFeePercent},
		{"sell_fee_percent", p.SellFeePercent, money.PercentPlaces, &seed.SellFeePercent},
		{"withdrawal_fee", p.WithdrawalFee, money.FiatPlaces, &seed.WithdrawalFee},
		{"maintenance_fee", p.MaintenanceFee, money.FiatPlaces, &seed.MaintenanceFee},
	}
	for _, f := range fields {
		value, err := money.Parse(f.raw, f.places)
		if err != nil {
			return models.SystemConfig{}, fmt.Errorf("pricing.%s: %w", f.name, err)
		}
		*f.dest = value
	}
	return seed, nil
}
