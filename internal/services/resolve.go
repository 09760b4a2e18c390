package services

import (
	"context"
	"fmt"

	"cacaowallet/internal/conversion"
	"cacaowallet/internal/events"
	"cacaowallet/internal/ledger"
	"cacaowallet/internal/logger"
	"cacaowallet/internal/metrics"
	"cacaowallet/internal/models"
	"cacaowallet/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// MeasurementOverrides are the inspector's figures for a physical deposit.
// Nil fields keep the declared value.
type MeasurementOverrides struct {
	GrossWeight  *decimal.Decimal
	Grade        *models.QualityGrade
	Moisture     *decimal.Decimal
	Fermentation *decimal.Decimal
	Impurities   *decimal.Decimal
}

func (o *MeasurementOverrides) empty() bool {
	return o == nil || (o.GrossWeight == nil && o.Grade == nil && o.Moisture == nil && o.Fermentation == nil && o.Impurities == nil)
}

func (o *MeasurementOverrides) apply(d models.PhysicalDeposit) models.PhysicalDeposit {
	if o == nil {
		return d
	}
	if o.GrossWeight != nil {
		d.GrossWeight = *o.GrossWeight
	}
	if o.Grade != nil {
		d.QualityGrade = *o.Grade
	}
	if o.Moisture != nil {
		d.MoistureContent = *o.Moisture
	}
	if o.Fermentation != nil {
		d.FermentationGrade = *o.Fermentation
	}
	if o.Impurities != nil {
		d.ImpuritiesContent = *o.Impurities
	}
	return d
}

func measurementsOf(d models.PhysicalDeposit) conversion.Measurements {
	return conversion.Measurements{
		GrossWeight:  d.GrossWeight,
		Grade:        d.QualityGrade,
		Moisture:     d.MoistureContent,
		Fermentation: d.FermentationGrade,
		Impurities:   d.ImpuritiesContent,
	}
}

type ResolveRequest struct {
	TransactionID string
	Decision      Decision
	Notes         string
	OperatorID    string
	Overrides     *MeasurementOverrides
}

// Resolve moves a PENDING transaction to COMPLETED or REJECTED. The row is
// re-read under lock and the status write is conditional, so of two
// concurrent resolutions exactly one succeeds and the other gets
// ErrAlreadyResolved with no effect.
func (s *SettlementService) Resolve(ctx context.Context, req ResolveRequest) (models.Transaction, error) {
	if !req.Decision.Valid() {
		return models.Transaction{}, invalid("decision", "must be approve or reject")
	}
	if req.OperatorID == "" {
		return models.Transaction{}, ErrUnauthorizedOperator
	}
	log := logger.FromContext(ctx).With(
		zap.String("transaction_id", req.TransactionID),
		zap.String("decision", string(req.Decision)),
		zap.String("operator_id", req.OperatorID),
	)
	var resolved models.Transaction
	out := &outcome{}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		*out = outcome{}
		t, err := s.stores.Transactions.GetForUpdate(ctx, tx, req.TransactionID)
		if err != nil {
			return notFound(err, "transaction")
		}
		if t.Status != models.StatusPending {
			return ErrAlreadyResolved
		}
		if !req.Overrides.empty() && t.Type != models.TypeDepositCacao {
			return invalid("measurements", "only physical deposits are graded")
		}
		input := store.ResolveInput{ID: t.ID, ResolvedBy: req.OperatorID, Notes: optional(req.Notes)}
		if req.Decision == DecisionApprove {
			input.Status = models.StatusCompleted
			err = s.approve(ctx, tx, out, t, &input, req.Overrides)
		} else {
			input.Status = models.StatusRejected
			err = s.reject(ctx, tx, out, t, req.OperatorID)
		}
		if err != nil {
			return err
		}
		rows, err := s.stores.Transactions.Resolve(ctx, tx, input)
		if err != nil {
			return err
		}
		if rows != 1 {
			return ErrAlreadyResolved
		}
		now := s.now().UTC()
		t.Status = input.Status
		t.ResolvedBy = &req.OperatorID
		t.ResolvedAt = &now
		t.UpdatedAt = now
		if input.Notes != nil {
			t.Notes = input.Notes
		}
		if input.CacaoAmount.Valid {
			t.CacaoAmount = input.CacaoAmount.Decimal
		}
		resolved = t
		return s.audit(ctx, tx, req.OperatorID, "resolve_transaction", "transaction", t.ID, map[string]any{
			"decision": string(req.Decision),
			"type":     string(t.Type),
			"user_id":  t.UserID,
			"notes":    req.Notes,
		})
	})
	if err != nil {
		metrics.SettlementFailed(FailureReason(err))
		log.Warn("settlement failed", zap.String("reason", FailureReason(err)), zap.Error(err))
		return models.Transaction{}, err
	}
	out.events = append(out.events, s.transactionEvent(events.KindTransactionResolved, resolved, req.Decision, req.OperatorID))
	s.publish(ctx, out)
	metrics.SettlementResolved(string(resolved.Type), string(req.Decision))
	log.Info("transaction resolved",
		zap.String("user_id", resolved.UserID),
		zap.String("type", string(resolved.Type)),
		zap.String("status", string(resolved.Status)),
	)
	return resolved, nil
}

func (s *SettlementService) approve(ctx context.Context, tx *sqlx.Tx, out *outcome, t models.Transaction, input *store.ResolveInput, overrides *MeasurementOverrides) error {
	move := func(asset ledger.Asset, amount decimal.Decimal, counterparty, description string) ledger.Movement {
		return ledger.Movement{TransactionID: t.ID, Asset: asset, Amount: amount, Counterparty: counterparty, Description: description}
	}
	switch t.Type {
	case models.TypeBuy:
		wallet, err := s.ledger.Credit(ctx, tx, t.UserID, move(ledger.AssetCacao, t.CacaoAmount, ledger.AccountReserve, "Cacao purchase"))
		if err != nil {
			return err
		}
		out.setWallet(wallet)
		if err := s.updateReserve(ctx, tx, out, issue(t.CacaoAmount)); err != nil {
			return err
		}
		net := t.FiatAmount.Sub(t.FeeAmount)
		if err := s.ledger.PostSystem(ctx, tx, t.ID, ledger.AssetFiat, net, ledger.AccountExternalFiat, ledger.AccountReserve, "Purchase payment"); err != nil {
			return err
		}
		return s.collectFee(ctx, tx, out, t.ID, t.FeeAmount, ledger.AccountExternalFiat, "Purchase fee")

	case models.TypeDepositUSD:
		wallet, err := s.ledger.Credit(ctx, tx, t.UserID, move(ledger.AssetFiat, t.FiatAmount, ledger.AccountExternalFiat, "Fiat deposit"))
		if err != nil {
			return err
		}
		out.setWallet(wallet)
		return nil

	case models.TypeDepositCacao:
		return s.approvePhysical(ctx, tx, out, t, input, overrides)

	case models.TypeSell:
		wallet, err := s.ledger.FinalizeHold(ctx, tx, t.UserID, move(ledger.AssetCacao, t.CacaoAmount, ledger.AccountReserve, "Cacao sale"))
		if err != nil {
			return err
		}
		out.setWallet(wallet)
		if err := s.updateReserve(ctx, tx, out, retire(t.CacaoAmount), release(t.CacaoAmount)); err != nil {
			return err
		}
		if err := s.ledger.PostSystem(ctx, tx, t.ID, ledger.AssetFiat, t.FiatAmount, ledger.AccountReserve, ledger.AccountExternalFiat, "Sale payout"); err != nil {
			return err
		}
		return s.collectFee(ctx, tx, out, t.ID, t.FeeAmount, ledger.AccountReserve, "Sale fee")

	case models.TypeWithdrawCacao:
		wallet, err := s.ledger.FinalizeHold(ctx, tx, t.UserID, move(ledger.AssetCacao, t.CacaoAmount, ledger.AccountReserve, "Physical withdrawal"))
		if err != nil {
			return err
		}
		out.setWallet(wallet)
		return s.updateReserve(ctx, tx, out, retire(t.CacaoAmount), release(t.CacaoAmount))

	case models.TypeWithdrawUSD:
		wallet, err := s.ledger.FinalizeHold(ctx, tx, t.UserID, move(ledger.AssetFiat, t.FiatAmount, ledger.AccountExternalFiat, "Fiat withdrawal"))
		if err != nil {
			return err
		}
		out.setWallet(wallet)
		return s.collectFee(ctx, tx, out, t.ID, t.FeeAmount, ledger.AccountExternalFiat, "Withdrawal fee")
	}
	return invalid("type", fmt.Sprintf("%s transactions are not settled by operators", t.Type))
}

// approvePhysical grades the delivery with the inspector's figures and
// issues the resulting tokens. A grade mismatch aborts the whole resolution
// and leaves the deposit pending.
func (s *SettlementService) approvePhysical(ctx context.Context, tx *sqlx.Tx, out *outcome, t models.Transaction, input *store.ResolveInput, overrides *MeasurementOverrides) error {
	declared, err := s.stores.PhysicalDeposits.GetByTransactionForUpdate(ctx, tx, t.ID)
	if err != nil {
		return notFound(err, "physical deposit")
	}
	if declared.FinalTokensIssued.Valid {
		return ErrAlreadyResolved
	}
	graded := overrides.apply(declared)
	result, err := s.policy.ComputeTokens(measurementsOf(graded))
	if err != nil {
		return measurementError(err)
	}
	if !overrides.empty() {
		rows, err := s.stores.PhysicalDeposits.UpdateMeasurements(ctx, tx, graded)
		if err != nil {
			return err
		}
		if rows != 1 {
			return ErrAlreadyResolved
		}
	}
	wallet, err := s.ledger.Credit(ctx, tx, t.UserID, ledger.Movement{
		TransactionID: t.ID,
		Asset:         ledger.AssetCacao,
		Amount:        result.FinalTokens,
		Counterparty:  ledger.AccountReserve,
		Description:   "Physical deposit",
	})
	if err != nil {
		return err
	}
	out.setWallet(wallet)
	if err := s.updateReserve(ctx, tx, out, deposit(result.FinalTokens), issue(result.FinalTokens)); err != nil {
		return err
	}
	rows, err := s.stores.PhysicalDeposits.RecordConversion(ctx, tx, declared.ID, input.ResolvedBy, result.ConversionFactor, result.FinalTokens)
	if err != nil {
		return err
	}
	if rows != 1 {
		return ErrAlreadyResolved
	}
	input.CacaoAmount = nullDecimal(result.FinalTokens)
	return nil
}

func (s *SettlementService) reject(ctx context.Context, tx *sqlx.Tx, out *outcome, t models.Transaction, operatorID string) error {
	switch t.Type {
	case models.TypeSell, models.TypeWithdrawCacao:
		wallet, err := s.ledger.Release(ctx, tx, t.UserID, ledger.AssetCacao, t.CacaoAmount)
		if err != nil {
			return err
		}
		out.setWallet(wallet)
	case models.TypeWithdrawUSD:
		wallet, err := s.ledger.Release(ctx, tx, t.UserID, ledger.AssetFiat, t.FiatAmount)
		if err != nil {
			return err
		}
		out.setWallet(wallet)
	case models.TypeDepositCacao:
		d, err := s.stores.PhysicalDeposits.GetByTransactionForUpdate(ctx, tx, t.ID)
		if err != nil {
			return notFound(err, "physical deposit")
		}
		return s.stores.PhysicalDeposits.MarkInspected(ctx, tx, d.ID, operatorID)
	}
	return nil
}

type VerifyRequest struct {
	DepositID  string
	Decision   Decision
	Notes      string
	OperatorID string
	Overrides  *MeasurementOverrides
}

// VerifyPhysicalDeposit resolves the transaction behind a physical deposit
// and returns both records as stored afterwards.
func (s *SettlementService) VerifyPhysicalDeposit(ctx context.Context, req VerifyRequest) (models.Transaction, models.PhysicalDeposit, error) {
	d, err := s.stores.PhysicalDeposits.GetByID(ctx, req.DepositID)
	if err != nil {
		return models.Transaction{}, models.PhysicalDeposit{}, notFound(err, "physical deposit")
	}
	resolved, err := s.Resolve(ctx, ResolveRequest{
		TransactionID: d.TransactionID,
		Decision:      req.Decision,
		Notes:         req.Notes,
		OperatorID:    req.OperatorID,
		Overrides:     req.Overrides,
	})
	if err != nil {
		return models.Transaction{}, models.PhysicalDeposit{}, err
	}
	updated, err := s.stores.PhysicalDeposits.GetByID(ctx, req.DepositID)
	if err != nil {
		return models.Transaction{}, models.PhysicalDeposit{}, err
	}
	return resolved, updated, nil
}
