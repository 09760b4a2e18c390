package services

import (
	"context"

	"cacaowallet/internal/logger"
	"cacaowallet/internal/models"
	"cacaowallet/internal/store"

	"go.uber.org/zap"
)

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 200
)

// Oracle is the operator-facing entry point of settlement. It checks that
// the caller may settle and delegates to SettlementService.
type Oracle struct {
	settlement   *SettlementService
	transactions TransactionStore
	admins       AdminStore
}

func NewOracle(settlement *SettlementService, admins AdminStore) *Oracle {
	return &Oracle{
		settlement:   settlement,
		transactions: settlement.stores.Transactions,
		admins:       admins,
	}
}

func (o *Oracle) authorize(ctx context.Context, operatorID string) error {
	if operatorID == "" {
		return ErrUnauthorizedOperator
	}
	ok, err := o.admins.Authorized(ctx, operatorID, store.RoleCanSettle)
	if err != nil {
		return err
	}
	if !ok {
		logger.FromContext(ctx).Warn("settlement attempt without permission", zap.String("operator_id", operatorID))
		return ErrUnauthorizedOperator
	}
	return nil
}

// ListPending returns pending transactions oldest first, with the user and
// payout context the operator needs.
func (o *Oracle) ListPending(ctx context.Context, operatorID string, limit, offset int) ([]models.PendingTransaction, error) {
	if err := o.authorize(ctx, operatorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	if offset < 0 {
		offset = 0
	}
	return o.transactions.ListPending(ctx, limit, offset)
}

func (o *Oracle) Resolve(ctx context.Context, req ResolveRequest) (models.Transaction, error) {
	if err := o.authorize(ctx, req.OperatorID); err != nil {
		return models.Transaction{}, err
	}
	return o.settlement.Resolve(ctx, req)
}

func (o *Oracle) Approve(ctx context.Context, transactionID, operatorID, notes string) (models.Transaction, error) {
	return o.Resolve(ctx, ResolveRequest{TransactionID: transactionID, Decision: DecisionApprove, Notes: notes, OperatorID: operatorID})
}

func (o *Oracle) Reject(ctx context.Context, transactionID, operatorID, notes string) (models.Transaction, error) {
	return o.Resolve(ctx, ResolveRequest{TransactionID: transactionID, Decision: DecisionReject, Notes: notes, OperatorID: operatorID})
}

func (o *Oracle) VerifyPhysicalDeposit(ctx context.Context, req VerifyRequest) (models.Transaction, models.PhysicalDeposit, error) {
	if err := o.authorize(ctx, req.OperatorID); err != nil {
		return models.Transaction{}, models.PhysicalDeposit{}, err
	}
	return o.settlement.VerifyPhysicalDeposit(ctx, req)
}
