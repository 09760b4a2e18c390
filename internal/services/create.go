package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cacaowallet/internal/conversion"
	"cacaowallet/internal/events"
	"cacaowallet/internal/ledger"
	"cacaowallet/internal/logger"
	"cacaowallet/internal/metrics"
	"cacaowallet/internal/models"
	"cacaowallet/internal/money"
	"cacaowallet/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BuyRequest struct {
	UserID     string
	FiatAmount decimal.Decimal
	Reference  string
	QuoteID    string
}

type SellRequest struct {
	UserID          string
	CacaoAmount     decimal.Decimal
	PaymentMethodID string
}

type FiatDepositRequest struct {
	UserID    string
	Amount    decimal.Decimal
	Reference string
}

type FiatWithdrawalRequest struct {
	UserID          string
	Amount          decimal.Decimal
	PaymentMethodID string
}

type CacaoWithdrawalRequest struct {
	UserID             string
	CacaoAmount        decimal.Decimal
	CollectionCenterID string
}

type PhysicalDepositRequest struct {
	UserID             string
	CollectionCenterID string
	Measurements       conversion.Measurements
}

// BuyEstimate is the split of a fiat payment into fee and grams.
type BuyEstimate struct {
	FiatAmount  decimal.Decimal `json:"fiat_amount"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	CacaoAmount decimal.Decimal `json:"cacao_amount"`
	Price       decimal.Decimal `json:"price"`
}

// SellEstimate is the payout of selling grams at the current price.
type SellEstimate struct {
	CacaoAmount decimal.Decimal `json:"cacao_amount"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	Price       decimal.Decimal `json:"price"`
}

func estimateBuy(cfg models.SystemConfig, fiat decimal.Decimal) (BuyEstimate, error) {
	if !cfg.BuyPrice.IsPositive() {
		return BuyEstimate{}, errors.New("buy price is not configured")
	}
	fee := money.PercentOf(fiat, cfg.BuyFeePercent, money.FiatPlaces)
	net := fiat.Sub(fee)
	grams := money.RoundGrams(net.Div(cfg.BuyPrice))
	if !grams.IsPositive() {
		return BuyEstimate{}, invalid("amount", "too small to buy any cacao")
	}
	return BuyEstimate{FiatAmount: fiat, FeeAmount: fee, NetAmount: net, CacaoAmount: grams, Price: cfg.BuyPrice}, nil
}

func estimateSell(cfg models.SystemConfig, grams decimal.Decimal) (SellEstimate, error) {
	if !cfg.SellPrice.IsPositive() {
		return SellEstimate{}, errors.New("sell price is not configured")
	}
	gross := money.RoundFiat(grams.Mul(cfg.SellPrice))
	fee := money.PercentOf(gross, cfg.SellFeePercent, money.FiatPlaces)
	net := gross.Sub(fee)
	if !net.IsPositive() {
		return SellEstimate{}, invalid("cacao_amount", "too small to cover fees")
	}
	return SellEstimate{CacaoAmount: grams, GrossAmount: gross, FeeAmount: fee, NetAmount: net, Price: cfg.SellPrice}, nil
}

// CreateBuy records a PENDING purchase paid in fiat outside the platform.
// Grams are priced now, or by the referenced quote, and credited on approval.
func (s *SettlementService) CreateBuy(ctx context.Context, req BuyRequest) (models.Transaction, error) {
	var est BuyEstimate
	if req.QuoteID == "" {
		if err := checkAmount("amount", req.FiatAmount, money.FiatPlaces); err != nil {
			return models.Transaction{}, err
		}
		cfg, err := s.config(ctx)
		if err != nil {
			return models.Transaction{}, err
		}
		if est, err = estimateBuy(cfg, req.FiatAmount); err != nil {
			return models.Transaction{}, err
		}
	}
	if err := s.requireActiveWallet(ctx, req.UserID); err != nil {
		return models.Transaction{}, err
	}
	var created models.Transaction
	out := &outcome{}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		if req.QuoteID != "" {
			quoted, err := s.consumeQuote(ctx, tx, req.QuoteID, req.UserID)
			if err != nil {
				return err
			}
			est = quoted
		}
		current, err := s.stores.Reserve.Get(ctx)
		if err != nil {
			return err
		}
		if current.AvailableStock.LessThan(est.CacaoAmount) {
			return ErrInsufficientReserve
		}
		created, err = s.insert(ctx, tx, store.TransactionInput{
			ID:               uuid.NewString(),
			UserID:           req.UserID,
			Type:             models.TypeBuy,
			Status:           models.StatusPending,
			FiatAmount:       est.FiatAmount,
			CacaoAmount:      est.CacaoAmount,
			FeeAmount:        est.FeeAmount,
			PriceAtExecution: nullDecimal(est.Price),
			Reference:        optional(req.Reference),
			QuoteID:          optional(req.QuoteID),
		})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, req.UserID, "create_buy", "transaction", created.ID, map[string]any{
			"fiat_amount":  money.FormatFiat(est.FiatAmount),
			"cacao_amount": money.FormatGrams(est.CacaoAmount),
			"quote_id":     req.QuoteID,
		})
	})
	return s.created(ctx, created, out, err)
}

// CreateSell holds the grams being sold until an operator pays out.
func (s *SettlementService) CreateSell(ctx context.Context, req SellRequest) (models.Transaction, error) {
	if err := checkAmount("cacao_amount", req.CacaoAmount, money.GramPlaces); err != nil {
		return models.Transaction{}, err
	}
	if req.PaymentMethodID == "" {
		return models.Transaction{}, invalid("payment_method_id", "is required")
	}
	cfg, err := s.config(ctx)
	if err != nil {
		return models.Transaction{}, err
	}
	est, err := estimateSell(cfg, req.CacaoAmount)
	if err != nil {
		return models.Transaction{}, err
	}
	var created models.Transaction
	out := &outcome{}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		if err := s.requirePaymentMethod(ctx, tx, req.PaymentMethodID, req.UserID); err != nil {
			return err
		}
		wallet, err := s.ledger.Hold(ctx, tx, req.UserID, ledger.AssetCacao, req.CacaoAmount)
		if err != nil {
			return err
		}
		out.setWallet(wallet)
		created, err = s.insert(ctx, tx, store.TransactionInput{
			ID:               uuid.NewString(),
			UserID:           req.UserID,
			Type:             models.TypeSell,
			Status:           models.StatusPending,
			FiatAmount:       est.NetAmount,
			CacaoAmount:      est.CacaoAmount,
			FeeAmount:        est.FeeAmount,
			PriceAtExecution: nullDecimal(est.Price),
			PaymentMethodID:  optional(req.PaymentMethodID),
		})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, req.UserID, "create_sell", "transaction", created.ID, map[string]any{
			"cacao_amount": money.FormatGrams(est.CacaoAmount),
			"net_amount":   money.FormatFiat(est.NetAmount),
		})
	})
	return s.created(ctx, created, out, err)
}

// CreateFiatDeposit records a fiat transfer the user reports having made.
func (s *SettlementService) CreateFiatDeposit(ctx context.Context, req FiatDepositRequest) (models.Transaction, error) {
	if err := checkAmount("amount", req.Amount, money.FiatPlaces); err != nil {
		return models.Transaction{}, err
	}
	if req.Reference == "" {
		return models.Transaction{}, invalid("reference", "is required")
	}
	if err := s.requireActiveWallet(ctx, req.UserID); err != nil {
		return models.Transaction{}, err
	}
	var created models.Transaction
	out := &outcome{}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		var err error
		created, err = s.insert(ctx, tx, store.TransactionInput{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			Type:        models.TypeDepositUSD,
			Status:      models.StatusPending,
			FiatAmount:  req.Amount,
			CacaoAmount: decimal.Zero,
			FeeAmount:   decimal.Zero,
			Reference:   optional(req.Reference),
		})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, req.UserID, "create_fiat_deposit", "transaction", created.ID, map[string]any{
			"amount":    money.FormatFiat(req.Amount),
			"reference": req.Reference,
		})
	})
	return s.created(ctx, created, out, err)
}

// CreateFiatWithdrawal holds the full amount. The flat withdrawal fee comes
// out of the payout.
func (s *SettlementService) CreateFiatWithdrawal(ctx context.Context, req FiatWithdrawalRequest) (models.Transaction, error) {
	if err := checkAmount("amount", req.Amount, money.FiatPlaces); err != nil {
		return models.Transaction{}, err
	}
	if req.PaymentMethodID == "" {
		return models.Transaction{}, invalid("payment_method_id", "is required")
	}
	cfg, err := s.config(ctx)
	if err != nil {
		return models.Transaction{}, err
	}
	if !req.Amount.GreaterThan(cfg.WithdrawalFee) {
		return models.Transaction{}, invalid("amount", "must exceed the withdrawal fee of "+money.FormatFiat(cfg.WithdrawalFee))
	}
	var created models.Transaction
	out := &outcome{}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		if err := s.requirePaymentMethod(ctx, tx, req.PaymentMethodID, req.UserID); err != nil {
			return err
		}
		wallet, err := s.ledger.Hold(ctx, tx, req.UserID, ledger.AssetFiat, req.Amount)
		if err != nil {
			return err
		}
		out.setWallet(wallet)
		created, err = s.insert(ctx, tx, store.TransactionInput{
			ID:              uuid.NewString(),
			UserID:          req.UserID,
			Type:            models.TypeWithdrawUSD,
			Status:          models.StatusPending,
			FiatAmount:      req.Amount,
			CacaoAmount:     decimal.Zero,
			FeeAmount:       cfg.WithdrawalFee,
			PaymentMethodID: optional(req.PaymentMethodID),
		})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, req.UserID, "create_fiat_withdrawal", "transaction", created.ID, map[string]any{
			"amount": money.FormatFiat(req.Amount),
			"fee":    money.FormatFiat(cfg.WithdrawalFee),
		})
	})
	return s.created(ctx, created, out, err)
}

// CreateCacaoWithdrawal holds grams for pickup at a collection center.
func (s *SettlementService) CreateCacaoWithdrawal(ctx context.Context, req CacaoWithdrawalRequest) (models.Transaction, error) {
	if err := checkAmount("cacao_amount", req.CacaoAmount, money.GramPlaces); err != nil {
		return models.Transaction{}, err
	}
	if req.CollectionCenterID == "" {
		return models.Transaction{}, invalid("collection_center_id", "is required")
	}
	var created models.Transaction
	out := &outcome{}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		if err := s.requireCenter(ctx, tx, req.CollectionCenterID); err != nil {
			return err
		}
		wallet, err := s.ledger.Hold(ctx, tx, req.UserID, ledger.AssetCacao, req.CacaoAmount)
		if err != nil {
			return err
		}
		out.setWallet(wallet)
		created, err = s.insert(ctx, tx, store.TransactionInput{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			Type:        models.TypeWithdrawCacao,
			Status:      models.StatusPending,
			FiatAmount:  decimal.Zero,
			CacaoAmount: req.CacaoAmount,
			FeeAmount:   decimal.Zero,
			Reference:   optional("collection_center:" + req.CollectionCenterID),
		})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, req.UserID, "create_cacao_withdrawal", "transaction", created.ID, map[string]any{
			"cacao_amount":         money.FormatGrams(req.CacaoAmount),
			"collection_center_id": req.CollectionCenterID,
		})
	})
	return s.created(ctx, created, out, err)
}

// CreatePhysicalDeposit registers a delivery with its declared grading. The
// token estimate is recorded on the transaction; the inspector's figures
// decide the final amount.
func (s *SettlementService) CreatePhysicalDeposit(ctx context.Context, req PhysicalDepositRequest) (models.Transaction, models.PhysicalDeposit, error) {
	if req.CollectionCenterID == "" {
		return models.Transaction{}, models.PhysicalDeposit{}, invalid("collection_center_id", "is required")
	}
	estimate, err := s.policy.ComputeTokens(req.Measurements)
	if err != nil {
		return models.Transaction{}, models.PhysicalDeposit{}, measurementError(err)
	}
	if err := s.requireActiveWallet(ctx, req.UserID); err != nil {
		return models.Transaction{}, models.PhysicalDeposit{}, err
	}
	var created models.Transaction
	var physical models.PhysicalDeposit
	out := &outcome{}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		if err := s.requireCenter(ctx, tx, req.CollectionCenterID); err != nil {
			return err
		}
		var err error
		created, err = s.insert(ctx, tx, store.TransactionInput{
			ID:          uuid.NewString(),
			UserID:      req.UserID,
			Type:        models.TypeDepositCacao,
			Status:      models.StatusPending,
			FiatAmount:  decimal.Zero,
			CacaoAmount: estimate.FinalTokens,
			FeeAmount:   decimal.Zero,
		})
		if err != nil {
			return err
		}
		m := req.Measurements
		physical = models.PhysicalDeposit{
			ID:                 uuid.NewString(),
			TransactionID:      created.ID,
			UserID:             req.UserID,
			CollectionCenterID: req.CollectionCenterID,
			GrossWeight:        m.GrossWeight,
			QualityGrade:       m.Grade,
			MoistureContent:    m.Moisture,
			FermentationGrade:  m.Fermentation,
			ImpuritiesContent:  m.Impurities,
			CreatedAt:          created.CreatedAt,
		}
		if err := s.stores.PhysicalDeposits.Create(ctx, tx, physical); err != nil {
			return err
		}
		return s.audit(ctx, tx, req.UserID, "create_physical_deposit", "physical_deposit", physical.ID, map[string]any{
			"transaction_id":  created.ID,
			"gross_weight":    m.GrossWeight.String(),
			"quality_grade":   string(m.Grade),
			"estimated_grams": money.FormatGrams(estimate.FinalTokens),
		})
	})
	created, err = s.created(ctx, created, out, err)
	if err != nil {
		return models.Transaction{}, models.PhysicalDeposit{}, err
	}
	return created, physical, nil
}

// QuoteBuy prices a purchase and keeps the price for the quote TTL.
func (s *SettlementService) QuoteBuy(ctx context.Context, userID string, fiat decimal.Decimal) (models.PriceQuote, error) {
	if err := checkAmount("amount", fiat, money.FiatPlaces); err != nil {
		return models.PriceQuote{}, err
	}
	cfg, err := s.config(ctx)
	if err != nil {
		return models.PriceQuote{}, err
	}
	est, err := estimateBuy(cfg, fiat)
	if err != nil {
		return models.PriceQuote{}, err
	}
	quote := models.PriceQuote{
		ID:          uuid.NewString(),
		UserID:      userID,
		FiatAmount:  est.FiatAmount,
		FeeAmount:   est.FeeAmount,
		CacaoAmount: est.CacaoAmount,
		Price:       est.Price,
		ExpiresAt:   s.now().Add(s.quoteTTL).UTC(),
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.stores.Quotes.Create(ctx, tx, quote)
	})
	if err != nil {
		return models.PriceQuote{}, err
	}
	return quote, nil
}

// QuoteSell prices a sale without reserving anything.
func (s *SettlementService) QuoteSell(ctx context.Context, grams decimal.Decimal) (SellEstimate, error) {
	if err := checkAmount("cacao_amount", grams, money.GramPlaces); err != nil {
		return SellEstimate{}, err
	}
	cfg, err := s.config(ctx)
	if err != nil {
		return SellEstimate{}, err
	}
	return estimateSell(cfg, grams)
}

func (s *SettlementService) consumeQuote(ctx context.Context, tx *sqlx.Tx, quoteID, userID string) (BuyEstimate, error) {
	quote, err := s.stores.Quotes.GetForUpdate(ctx, tx, quoteID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BuyEstimate{}, ErrQuoteNotFound
		}
		return BuyEstimate{}, err
	}
	if quote.ConsumedAt != nil {
		return BuyEstimate{}, ErrQuoteConsumed
	}
	if s.now().After(quote.ExpiresAt) {
		return BuyEstimate{}, ErrQuoteExpired
	}
	rows, err := s.stores.Quotes.Consume(ctx, tx, quote.ID)
	if err != nil {
		return BuyEstimate{}, err
	}
	if rows != 1 {
		return BuyEstimate{}, ErrQuoteConsumed
	}
	return BuyEstimate{
		FiatAmount:  quote.FiatAmount,
		FeeAmount:   quote.FeeAmount,
		NetAmount:   quote.FiatAmount.Sub(quote.FeeAmount),
		CacaoAmount: quote.CacaoAmount,
		Price:       quote.Price,
	}, nil
}

func (s *SettlementService) requireActiveWallet(ctx context.Context, userID string) error {
	wallet, err := s.stores.Wallets.GetByUser(ctx, userID)
	if err != nil {
		return notFound(err, "wallet")
	}
	if !wallet.IsActive {
		return ErrWalletInactive
	}
	return nil
}

func (s *SettlementService) requirePaymentMethod(ctx context.Context, tx *sqlx.Tx, id, userID string) error {
	if _, err := s.stores.PaymentMethods.GetByID(ctx, tx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid("payment_method_id", "not found")
		}
		return err
	}
	return nil
}

func (s *SettlementService) requireCenter(ctx context.Context, tx *sqlx.Tx, id string) error {
	center, err := s.stores.CollectionCenters.GetByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid("collection_center_id", "not found")
		}
		return err
	}
	if !center.IsActive {
		return invalid("collection_center_id", "collection center is closed")
	}
	return nil
}

func (s *SettlementService) insert(ctx context.Context, tx *sqlx.Tx, input store.TransactionInput) (models.Transaction, error) {
	if err := s.stores.Transactions.Create(ctx, tx, input); err != nil {
		return models.Transaction{}, fmt.Errorf("create %s transaction: %w", input.Type, err)
	}
	now := s.now().UTC()
	created := models.Transaction{
		ID:               input.ID,
		UserID:           input.UserID,
		Type:             input.Type,
		Status:           input.Status,
		FiatAmount:       input.FiatAmount,
		CacaoAmount:      input.CacaoAmount,
		FeeAmount:        input.FeeAmount,
		PriceAtExecution: input.PriceAtExecution,
		Reference:        input.Reference,
		PaymentMethodID:  input.PaymentMethodID,
		QuoteID:          input.QuoteID,
		Notes:            input.Notes,
		ResolvedBy:       input.ResolvedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if input.Status.Terminal() {
		created.ResolvedAt = &now
	}
	return created, nil
}

// created finishes a create operation: failures are counted and logged,
// successes are announced.
func (s *SettlementService) created(ctx context.Context, t models.Transaction, out *outcome, err error) (models.Transaction, error) {
	log := logger.FromContext(ctx)
	if err != nil {
		metrics.SettlementFailed(FailureReason(err))
		log.Info("transaction rejected at creation", zap.String("reason", FailureReason(err)), zap.Error(err))
		return models.Transaction{}, err
	}
	metrics.TransactionCreated(string(t.Type), string(t.Status))
	kind := events.KindTransactionPending
	if t.Status.Terminal() {
		kind = events.KindTransactionInstant
	}
	out.events = append(out.events, s.transactionEvent(kind, t, "", ""))
	s.publish(ctx, out)
	log.Info("transaction created",
		zap.String("transaction_id", t.ID),
		zap.String("user_id", t.UserID),
		zap.String("type", string(t.Type)),
		zap.String("status", string(t.Status)),
	)
	return t, nil
}
