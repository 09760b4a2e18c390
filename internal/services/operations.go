package services

import (
	"context"

	"cacaowallet/internal/events"
	"cacaowallet/internal/ledger"
	"cacaowallet/internal/logger"
	"cacaowallet/internal/models"
	"cacaowallet/internal/money"
	"cacaowallet/internal/reserve"
	"cacaowallet/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ConversionDirection string

const (
	DirectionCacaoToUSD ConversionDirection = "cacao_to_usd"
	DirectionUSDToCacao ConversionDirection = "usd_to_cacao"
)

// ConvertRequest swaps one balance for the other at the current price.
// Amount is grams for cacao_to_usd and fiat for usd_to_cacao.
type ConvertRequest struct {
	UserID    string
	Direction ConversionDirection
	Amount    decimal.Decimal
}

// Convert settles instantly: both legs move under one wallet lock and the
// transaction is recorded as COMPLETED.
func (s *SettlementService) Convert(ctx context.Context, req ConvertRequest) (models.Transaction, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return models.Transaction{}, err
	}
	var input store.TransactionInput
	var out, in ledger.Movement
	var step reserveStep
	id := uuid.NewString()
	switch req.Direction {
	case DirectionCacaoToUSD:
		if err := checkAmount("amount", req.Amount, money.GramPlaces); err != nil {
			return models.Transaction{}, err
		}
		est, err := estimateSell(cfg, req.Amount)
		if err != nil {
			return models.Transaction{}, err
		}
		input = store.TransactionInput{
			Type: models.TypeConvertCacaoToUSD, FiatAmount: est.NetAmount, CacaoAmount: est.CacaoAmount,
			FeeAmount: est.FeeAmount, PriceAtExecution: nullDecimal(est.Price),
		}
		out = ledger.Movement{TransactionID: id, Asset: ledger.AssetCacao, Amount: est.CacaoAmount, Counterparty: ledger.AccountExchange, Description: "Conversion to fiat"}
		in = ledger.Movement{TransactionID: id, Asset: ledger.AssetFiat, Amount: est.NetAmount, Counterparty: ledger.AccountExchange, Description: "Conversion to fiat"}
		step = retire(est.CacaoAmount)
	case DirectionUSDToCacao:
		if err := checkAmount("amount", req.Amount, money.FiatPlaces); err != nil {
			return models.Transaction{}, err
		}
		est, err := estimateBuy(cfg, req.Amount)
		if err != nil {
			return models.Transaction{}, err
		}
		input = store.TransactionInput{
			Type: models.TypeConvertUSDToCacao, FiatAmount: est.FiatAmount, CacaoAmount: est.CacaoAmount,
			FeeAmount: est.FeeAmount, PriceAtExecution: nullDecimal(est.Price),
		}
		out = ledger.Movement{TransactionID: id, Asset: ledger.AssetFiat, Amount: est.FiatAmount, Counterparty: ledger.AccountExchange, Description: "Conversion to cacao"}
		in = ledger.Movement{TransactionID: id, Asset: ledger.AssetCacao, Amount: est.CacaoAmount, Counterparty: ledger.AccountExchange, Description: "Conversion to cacao"}
		step = issue(est.CacaoAmount)
	default:
		return models.Transaction{}, invalid("direction", "must be cacao_to_usd or usd_to_cacao")
	}
	input.ID = id
	input.UserID = req.UserID
	input.Status = models.StatusCompleted

	var created models.Transaction
	result := &outcome{}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*result = outcome{}
		var err error
		created, err = s.insert(ctx, tx, input)
		if err != nil {
			return err
		}
		wallet, err := s.ledger.TransferBothAtomically(ctx, tx, req.UserID, out, in)
		if err != nil {
			return err
		}
		result.setWallet(wallet)
		if err := s.updateReserve(ctx, tx, result, step); err != nil {
			return err
		}
		if err := s.collectFee(ctx, tx, result, id, input.FeeAmount, ledger.AccountExchange, "Conversion fee"); err != nil {
			return err
		}
		return s.audit(ctx, tx, req.UserID, "convert", "transaction", id, map[string]any{
			"direction":    string(req.Direction),
			"fiat_amount":  money.FormatFiat(input.FiatAmount),
			"cacao_amount": money.FormatGrams(input.CacaoAmount),
		})
	})
	return s.created(ctx, created, result, err)
}

type MaintenanceFeeRequest struct {
	UserID     string
	Amount     decimal.Decimal
	OperatorID string
}

// ChargeMaintenanceFee debits a user's available fiat into the treasury. A
// zero amount charges the configured maintenance fee.
func (s *SettlementService) ChargeMaintenanceFee(ctx context.Context, req MaintenanceFeeRequest) (models.Transaction, error) {
	amount := req.Amount
	if amount.IsZero() {
		cfg, err := s.config(ctx)
		if err != nil {
			return models.Transaction{}, err
		}
		amount = cfg.MaintenanceFee
	}
	if err := checkAmount("amount", amount, money.FiatPlaces); err != nil {
		return models.Transaction{}, err
	}
	id := uuid.NewString()
	var created models.Transaction
	out := &outcome{}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		var err error
		created, err = s.insert(ctx, tx, store.TransactionInput{
			ID:          id,
			UserID:      req.UserID,
			Type:        models.TypeMaintenanceFee,
			Status:      models.StatusCompleted,
			FiatAmount:  amount,
			CacaoAmount: decimal.Zero,
			FeeAmount:   amount,
			ResolvedBy:  optional(req.OperatorID),
		})
		if err != nil {
			return err
		}
		wallet, err := s.ledger.Debit(ctx, tx, req.UserID, ledger.Movement{
			TransactionID: id,
			Asset:         ledger.AssetFiat,
			Amount:        amount,
			Counterparty:  ledger.AccountTreasury,
			Description:   "Maintenance fee",
		})
		if err != nil {
			return notFound(err, "wallet")
		}
		out.setWallet(wallet)
		if err := s.creditTreasury(ctx, tx, out, amount); err != nil {
			return err
		}
		return s.audit(ctx, tx, req.OperatorID, "charge_maintenance_fee", "transaction", id, map[string]any{
			"user_id": req.UserID,
			"amount":  money.FormatFiat(amount),
		})
	})
	return s.created(ctx, created, out, err)
}

type StockIntakeRequest struct {
	Grams              decimal.Decimal
	CollectionCenterID string
	Notes              string
	OperatorID         string
}

// IntakeStock receives platform-owned cacao into the reserve. The grams join
// available stock without issuing tokens, which is the only way BUY and
// USD to cacao conversions gain backing.
func (s *SettlementService) IntakeStock(ctx context.Context, req StockIntakeRequest) (store.StockIntake, reserve.Reserve, error) {
	if err := checkAmount("grams", req.Grams, money.GramPlaces); err != nil {
		return store.StockIntake{}, reserve.Reserve{}, err
	}
	if req.CollectionCenterID == "" {
		return store.StockIntake{}, reserve.Reserve{}, invalid("collection_center_id", "is required")
	}
	intake := store.StockIntake{
		ID:                 uuid.NewString(),
		Grams:              req.Grams,
		CollectionCenterID: req.CollectionCenterID,
		Notes:              optional(req.Notes),
		CreatedBy:          req.OperatorID,
		CreatedAt:          s.now().UTC(),
	}
	out := &outcome{}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		if err := s.requireCenter(ctx, tx, req.CollectionCenterID); err != nil {
			return err
		}
		if err := s.updateReserve(ctx, tx, out, deposit(req.Grams)); err != nil {
			return err
		}
		if err := s.stores.Reserve.RecordStockIntake(ctx, tx, intake); err != nil {
			return err
		}
		if err := s.ledger.PostSystem(ctx, tx, intake.ID, ledger.AssetCacao, req.Grams, ledger.AccountExternalCacao, ledger.AccountReserve, "Reserve stock intake"); err != nil {
			return err
		}
		return s.audit(ctx, tx, req.OperatorID, "intake_stock", "stock_intake", intake.ID, map[string]any{
			"grams":                money.FormatGrams(req.Grams),
			"collection_center_id": req.CollectionCenterID,
		})
	})
	if err != nil {
		logger.FromContext(ctx).Warn("stock intake failed", zap.String("operator_id", req.OperatorID), zap.Error(err))
		return store.StockIntake{}, reserve.Reserve{}, err
	}
	s.publish(ctx, out)
	return intake, *out.reserve, nil
}

type TreasuryWithdrawalRequest struct {
	Amount      decimal.Decimal
	Destination string
	Notes       string
	OperatorID  string
}

// WithdrawTreasury pays collected fees out of the platform.
func (s *SettlementService) WithdrawTreasury(ctx context.Context, req TreasuryWithdrawalRequest) (store.TreasuryWithdrawal, reserve.Treasury, error) {
	if err := checkAmount("amount", req.Amount, money.FiatPlaces); err != nil {
		return store.TreasuryWithdrawal{}, reserve.Treasury{}, err
	}
	if req.Destination == "" {
		return store.TreasuryWithdrawal{}, reserve.Treasury{}, invalid("destination", "is required")
	}
	withdrawal := store.TreasuryWithdrawal{
		ID:          uuid.NewString(),
		Amount:      req.Amount,
		Destination: req.Destination,
		Notes:       optional(req.Notes),
		CreatedBy:   req.OperatorID,
		CreatedAt:   s.now().UTC(),
	}
	out := &outcome{}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		current, err := s.stores.Reserve.GetTreasuryForUpdate(ctx, tx)
		if err != nil {
			return err
		}
		next, err := current.Withdraw(req.Amount)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := s.stores.Reserve.SaveTreasury(ctx, tx, next); err != nil {
			return err
		}
		out.treasury = &next
		if err := s.stores.Reserve.RecordTreasuryWithdrawal(ctx, tx, withdrawal); err != nil {
			return err
		}
		if err := s.ledger.PostSystem(ctx, tx, withdrawal.ID, ledger.AssetFiat, req.Amount, ledger.AccountTreasury, ledger.AccountExternalFiat, "Treasury withdrawal"); err != nil {
			return err
		}
		return s.audit(ctx, tx, req.OperatorID, "withdraw_treasury", "treasury_withdrawal", withdrawal.ID, map[string]any{
			"amount":      money.FormatFiat(req.Amount),
			"destination": req.Destination,
		})
	})
	if err != nil {
		logger.FromContext(ctx).Warn("treasury withdrawal failed", zap.String("operator_id", req.OperatorID), zap.Error(err))
		return store.TreasuryWithdrawal{}, reserve.Treasury{}, err
	}
	s.publish(ctx, out)
	return withdrawal, *out.treasury, nil
}

type PriceUpdate struct {
	BuyPrice       decimal.Decimal
	SellPrice      decimal.Decimal
	BuyFeePercent  decimal.Decimal
	SellFeePercent decimal.Decimal
	WithdrawalFee  decimal.Decimal
	MaintenanceFee decimal.Decimal
	OperatorID     string
}

var hundred = decimal.NewFromInt(100)

func (u PriceUpdate) validate() error {
	if err := checkAmount("buy_price", u.BuyPrice, money.PricePlaces); err != nil {
		return err
	}
	if err := checkAmount("sell_price", u.SellPrice, money.PricePlaces); err != nil {
		return err
	}
	for _, pct := range []struct {
		field string
		value decimal.Decimal
	}{
		{"buy_fee_percent", u.BuyFeePercent},
		{"sell_fee_percent", u.SellFeePercent},
	} {
		if pct.value.IsNegative() || !pct.value.LessThan(hundred) {
			return invalid(pct.field, "must be at least 0 and below 100")
		}
		if pct.value.Exponent() < -money.PercentPlaces {
			return invalid(pct.field, "too many decimal places")
		}
	}
	for _, fee := range []struct {
		field string
		value decimal.Decimal
	}{
		{"withdrawal_fee", u.WithdrawalFee},
		{"maintenance_fee", u.MaintenanceFee},
	} {
		if fee.value.IsNegative() {
			return invalid(fee.field, "must not be negative")
		}
		if fee.value.Exponent() < -money.FiatPlaces {
			return invalid(fee.field, "too many decimal places")
		}
	}
	return nil
}

// UpdatePrices replaces the prices and fees used by new transactions.
// Pending transactions keep the price recorded at creation.
func (s *SettlementService) UpdatePrices(ctx context.Context, u PriceUpdate) (models.SystemConfig, error) {
	if err := u.validate(); err != nil {
		return models.SystemConfig{}, err
	}
	cfg := models.SystemConfig{
		BuyPrice:       u.BuyPrice,
		SellPrice:      u.SellPrice,
		BuyFeePercent:  u.BuyFeePercent,
		SellFeePercent: u.SellFeePercent,
		WithdrawalFee:  u.WithdrawalFee,
		MaintenanceFee: u.MaintenanceFee,
		UpdatedBy:      optional(u.OperatorID),
		UpdatedAt:      s.now().UTC(),
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.stores.SystemConfig.Update(ctx, tx, cfg); err != nil {
			return err
		}
		return s.audit(ctx, tx, u.OperatorID, "update_prices", "system_config", "1", map[string]any{
			"buy_price":        money.FormatPrice(u.BuyPrice),
			"sell_price":       money.FormatPrice(u.SellPrice),
			"buy_fee_percent":  u.BuyFeePercent.String(),
			"sell_fee_percent": u.SellFeePercent.String(),
			"withdrawal_fee":   money.FormatFiat(u.WithdrawalFee),
			"maintenance_fee":  money.FormatFiat(u.MaintenanceFee),
		})
	})
	if err != nil {
		return models.SystemConfig{}, err
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{ID: uuid.NewString(), Kind: events.KindPricesUpdated, OperatorID: u.OperatorID, OccurredAt: cfg.UpdatedAt})
	}
	logger.FromContext(ctx).Info("prices updated", zap.String("operator_id", u.OperatorID), zap.String("buy_price", u.BuyPrice.String()), zap.String("sell_price", u.SellPrice.String()))
	return cfg, nil
}

func (s *SettlementService) Prices(ctx context.Context) (models.SystemConfig, error) {
	return s.config(ctx)
}

func (s *SettlementService) Reserve(ctx context.Context) (reserve.Reserve, error) {
	r, err := s.stores.Reserve.Get(ctx)
	if err != nil {
		return reserve.Reserve{}, err
	}
	return r.Snapshot(), nil
}

func (s *SettlementService) Treasury(ctx context.Context) (reserve.Treasury, error) {
	return s.stores.Reserve.GetTreasury(ctx)
}

// ReconcileReport compares stored balances with the ledger and the reserve.
type ReconcileReport struct {
	Wallets         []store.WalletReconciliation `json:"wallets"`
	Mismatched      int                          `json:"mismatched"`
	CacaoBalances   decimal.Decimal              `json:"cacao_balances"`
	TokensIssued    decimal.Decimal              `json:"tokens_issued"`
	TokenDifference decimal.Decimal              `json:"token_difference"`
	Balanced        bool                         `json:"balanced"`
}

func (s *SettlementService) Reconcile(ctx context.Context, userID string) (ReconcileReport, error) {
	rows, err := s.stores.Wallets.Reconcile(ctx, userID)
	if err != nil {
		return ReconcileReport{}, err
	}
	total, err := s.stores.Wallets.SumCacao(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	r, err := s.stores.Reserve.Get(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	report := ReconcileReport{
		Wallets:         rows,
		CacaoBalances:   total,
		TokensIssued:    r.TokensIssued,
		TokenDifference: total.Sub(r.TokensIssued),
	}
	for _, row := range rows {
		if !row.FiatDifference.IsZero() || !row.CacaoDifference.IsZero() {
			report.Mismatched++
		}
	}
	report.Balanced = report.Mismatched == 0 && report.TokenDifference.IsZero()
	if !report.Balanced {
		logger.FromContext(ctx).Warn("reconciliation found differences",
			zap.Int("mismatched_wallets", report.Mismatched),
			zap.String("token_difference", report.TokenDifference.String()),
		)
	}
	return report, nil
}
