package services

import (
	"context"
	"encoding/json"
	"time"

	"cacaowallet/internal/conversion"
	"cacaowallet/internal/db"
	"cacaowallet/internal/events"
	"cacaowallet/internal/ledger"
	"cacaowallet/internal/logger"
	"cacaowallet/internal/metrics"
	"cacaowallet/internal/models"
	"cacaowallet/internal/reserve"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultQuoteTTL = 2 * time.Minute

// SettlementService creates transactions and drives them from PENDING to a
// terminal status. Balance, reserve and treasury changes of one operation
// share a single database transaction; notifications go out after commit.
type SettlementService struct {
	txRunner db.TxRunner
	stores   Stores
	ledger   *ledger.Ledger
	policy   conversion.Policy
	hub      BalanceHub
	bus      EventBus
	quoteTTL time.Duration
	now      func() time.Time
}

type Option func(*SettlementService)

func WithQuoteTTL(ttl time.Duration) Option {
	return func(s *SettlementService) {
		if ttl > 0 {
			s.quoteTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *SettlementService) {
		s.now = now
	}
}

func NewSettlementService(txRunner db.TxRunner, stores Stores, policy conversion.Policy, hub BalanceHub, bus EventBus, opts ...Option) *SettlementService {
	s := &SettlementService{
		txRunner: txRunner,
		stores:   stores,
		ledger:   ledger.New(stores.Wallets, stores.Ledger),
		policy:   policy,
		hub:      hub,
		bus:      bus,
		quoteTTL: DefaultQuoteTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome collects what a committed operation changed so it can be
// broadcast once the database transaction is durable.
type outcome struct {
	wallet   *models.Wallet
	reserve  *reserve.Reserve
	treasury *reserve.Treasury
	events   []events.Event
}

func (o *outcome) setWallet(w models.Wallet) {
	o.wallet = &w
}

func (s *SettlementService) publish(ctx context.Context, out *outcome) {
	if out.wallet != nil && s.hub != nil {
		s.hub.BroadcastWallet(*out.wallet)
	}
	if out.reserve != nil {
		metrics.ObserveReserve(*out.reserve)
	}
	if out.treasury != nil {
		metrics.ObserveTreasury(*out.treasury)
	}
	if s.bus == nil {
		return
	}
	for _, event := range out.events {
		s.bus.Publish(event)
	}
	if out.reserve != nil {
		s.bus.Publish(events.Event{ID: uuid.NewString(), Kind: events.KindReserveUpdated, CacaoAmount: out.reserve.TokensIssued, OccurredAt: s.now().UTC()})
	}
	logger.FromContext(ctx).Debug("settlement notifications sent", zap.Int("events", len(out.events)))
}

func (s *SettlementService) transactionEvent(kind events.Kind, t models.Transaction, decision Decision, operatorID string) events.Event {
	return events.Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		TransactionID: t.ID,
		UserID:        t.UserID,
		Type:          string(t.Type),
		Status:        string(t.Status),
		Decision:      string(decision),
		FiatAmount:    t.FiatAmount,
		CacaoAmount:   t.CacaoAmount,
		OperatorID:    operatorID,
		OccurredAt:    s.now().UTC(),
	}
}

type reserveStep func(reserve.Reserve) (reserve.Reserve, error)

func deposit(grams decimal.Decimal) reserveStep {
	return func(r reserve.Reserve) (reserve.Reserve, error) { return r.ApplyDeposit(grams) }
}

func issue(grams decimal.Decimal) reserveStep {
	return func(r reserve.Reserve) (reserve.Reserve, error) { return r.IssueTokens(grams) }
}

func retire(grams decimal.Decimal) reserveStep {
	return func(r reserve.Reserve) (reserve.Reserve, error) { return r.RetireTokens(grams) }
}

func release(grams decimal.Decimal) reserveStep {
	return func(r reserve.Reserve) (reserve.Reserve, error) { return r.ApplyWithdrawalOrSale(grams) }
}

// updateReserve locks the reserve row, applies steps in order and saves the
// result only if every invariant still holds.
func (s *SettlementService) updateReserve(ctx context.Context, tx *sqlx.Tx, out *outcome, steps ...reserveStep) error {
	current, err := s.stores.Reserve.GetForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	next := current
	for _, step := range steps {
		if next, err = step(next); err != nil {
			return err
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := s.stores.Reserve.Save(ctx, tx, next); err != nil {
		return err
	}
	out.reserve = &next
	return nil
}

// collectFee moves a fiat fee from a system account into the treasury.
// Zero fees are skipped.
func (s *SettlementService) collectFee(ctx context.Context, tx *sqlx.Tx, out *outcome, transactionID string, fee decimal.Decimal, from, description string) error {
	if !fee.IsPositive() {
		return nil
	}
	if err := s.creditTreasury(ctx, tx, out, fee); err != nil {
		return err
	}
	return s.ledger.PostSystem(ctx, tx, transactionID, ledger.AssetFiat, fee, from, ledger.AccountTreasury, description)
}

func (s *SettlementService) creditTreasury(ctx context.Context, tx *sqlx.Tx, out *outcome, fee decimal.Decimal) error {
	current, err := s.stores.Reserve.GetTreasuryForUpdate(ctx, tx)
	if err != nil {
		return err
	}
	next, err := current.Collect(fee)
	if err != nil {
		return err
	}
	if err := s.stores.Reserve.SaveTreasury(ctx, tx, next); err != nil {
		return err
	}
	out.treasury = &next
	return nil
}

func (s *SettlementService) audit(ctx context.Context, tx *sqlx.Tx, actorID, action, entityType, entityID string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.stores.Audit.Log(ctx, tx, actorID, action, entityType, entityID, string(payload))
}

func (s *SettlementService) config(ctx context.Context) (models.SystemConfig, error) {
	return s.stores.SystemConfig.Get(ctx, nil)
}

func checkAmount(field string, value decimal.Decimal, places int32) error {
	if !value.IsPositive() {
		return invalid(field, "must be greater than zero")
	}
	if value.Exponent() < -places {
		return invalid(field, "too many decimal places")
	}
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func nullDecimal(value decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(value)
}
