package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"cacaowallet/internal/events"
	"cacaowallet/internal/models"
	"cacaowallet/internal/reserve"
	"cacaowallet/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// memory is an in-process stand-in for the database. memoryTxRunner
// serializes transactions and restores a snapshot when one fails.
type memory struct {
	mu           sync.Mutex
	wallets      map[string]models.Wallet
	entries      []store.LedgerEntryInput
	transactions map[string]models.Transaction
	order        []string
	deposits     map[string]models.PhysicalDeposit
	centers      map[string]models.CollectionCenter
	reserve      reserve.Reserve
	treasury     reserve.Treasury
	withdrawals  []store.TreasuryWithdrawal
	intakes      []store.StockIntake
	config       models.SystemConfig
	quotes       map[string]models.PriceQuote
	methods      map[string]models.PaymentMethod
	audits       []string
	roles        map[string][]string
}

func newMemory() *memory {
	return &memory{
		wallets:      map[string]models.Wallet{},
		transactions: map[string]models.Transaction{},
		deposits:     map[string]models.PhysicalDeposit{},
		centers: map[string]models.CollectionCenter{
			"center-1": {ID: "center-1", Name: "Quevedo", IsActive: true},
			"center-2": {ID: "center-2", Name: "Closed", IsActive: false},
		},
		reserve: reserve.Reserve{
			TotalCacaoStock: dec("100000"),
			TokensIssued:    decimal.Zero,
			AvailableStock:  dec("100000"),
		},
		config: models.SystemConfig{
			BuyPrice:       dec("2.50"),
			SellPrice:      dec("2.00"),
			BuyFeePercent:  dec("1"),
			SellFeePercent: dec("2"),
			WithdrawalFee:  dec("1.50"),
			MaintenanceFee: dec("3.00"),
		},
		quotes:  map[string]models.PriceQuote{},
		methods: map[string]models.PaymentMethod{},
		roles:   map[string][]string{},
	}
}

func (m *memory) addWallet(userID string, fiat, cacao string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[userID] = models.Wallet{
		ID:           "wallet-" + userID,
		UserID:       userID,
		FiatBalance:  dec(fiat),
		CacaoBalance: dec(cacao),
		IsActive:     true,
	}
}

func (m *memory) addPaymentMethod(id, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods[id] = models.PaymentMethod{
		ID:      id,
		UserID:  userID,
		Type:    models.PaymentBankAccount,
		Details: models.BankAccount{BankName: "Banco Pichincha", AccountNumber: "2200123456", AccountHolder: "Ana"},
	}
}

func (m *memory) wallet(userID string) models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[userID]
}

func (m *memory) transaction(id string) models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions[id]
}

func (m *memory) snapshotReserve() reserve.Reserve {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserve
}

func (m *memory) snapshotTreasury() reserve.Treasury {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.treasury
}

func (m *memory) entryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memory) transactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

func (m *memory) cacaoTotal() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, w := range m.wallets {
		total = total.Add(w.CacaoBalance)
	}
	return total
}

func (m *memory) accountSum(accountID, asset string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, e := range m.entries {
		if e.AccountID == accountID && e.Asset == asset {
			total = total.Add(e.Amount)
		}
	}
	return total
}

type memoryState struct {
	wallets      map[string]models.Wallet
	entries      []store.LedgerEntryInput
	transactions map[string]models.Transaction
	order        []string
	deposits     map[string]models.PhysicalDeposit
	reserve      reserve.Reserve
	treasury     reserve.Treasury
	withdrawals  []store.TreasuryWithdrawal
	intakes      []store.StockIntake
	config       models.SystemConfig
	quotes       map[string]models.PriceQuote
	audits       []string
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memory) snapshot() memoryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryState{
		wallets:      copyMap(m.wallets),
		entries:      append([]store.LedgerEntryInput(nil), m.entries...),
		transactions: copyMap(m.transactions),
		order:        append([]string(nil), m.order...),
		deposits:     copyMap(m.deposits),
		reserve:      m.reserve,
		treasury:     m.treasury,
		withdrawals:  append([]store.TreasuryWithdrawal(nil), m.withdrawals...),
		intakes:      append([]store.StockIntake(nil), m.intakes...),
		config:       m.config,
		quotes:       copyMap(m.quotes),
		audits:       append([]string(nil), m.audits...),
	}
}

func (m *memory) restore(s memoryState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets = s.wallets
	m.entries = s.entries
	m.transactions = s.transactions
	m.order = s.order
	m.deposits = s.deposits
	m.reserve = s.reserve
	m.treasury = s.treasury
	m.withdrawals = s.withdrawals
	m.intakes = s.intakes
	m.config = s.config
	m.quotes = s.quotes
	m.audits = s.audits
}

type memoryTxRunner struct {
	mu  sync.Mutex
	mem *memory
}

func (r *memoryTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.mem.snapshot()
	if err := fn(nil); err != nil {
		r.mem.restore(snap)
		return err
	}
	return nil
}

type memWallets struct{ *memory }

func (m memWallets) GetByUser(_ context.Context, userID string) (models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return models.Wallet{}, sql.ErrNoRows
	}
	return w, nil
}

func (m memWallets) GetForUpdate(ctx context.Context, _ store.Getter, userID string) (models.Wallet, error) {
	return m.GetByUser(ctx, userID)
}

func (m memWallets) UpdateBalances(_ context.Context, _ store.Execer, w models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.FiatHeld.IsNegative() || w.CacaoHeld.IsNegative() || w.FiatBalance.LessThan(w.FiatHeld) || w.CacaoBalance.LessThan(w.CacaoHeld) {
		return errors.New("wallets_check violated")
	}
	m.wallets[w.UserID] = w
	return nil
}

func (m memWallets) SumCacao(_ context.Context) (decimal.Decimal, error) {
	return m.cacaoTotal(), nil
}

func (m memWallets) Reconcile(_ context.Context, userID string) ([]store.WalletReconciliation, error) {
	m.mu.Lock()
	wallets := copyMap(m.wallets)
	entries := append([]store.LedgerEntryInput(nil), m.entries...)
	m.mu.Unlock()
	var rows []store.WalletReconciliation
	for _, w := range wallets {
		if userID != "" && w.UserID != userID {
			continue
		}
		fiat, cacao := decimal.Zero, decimal.Zero
		for _, e := range entries {
			if e.AccountID != w.ID {
				continue
			}
			if e.Asset == "USD" {
				fiat = fiat.Add(e.Amount)
			} else {
				cacao = cacao.Add(e.Amount)
			}
		}
		rows = append(rows, store.WalletReconciliation{
			WalletID: w.ID, UserID: w.UserID,
			FiatBalance: w.FiatBalance, FiatLedgerSum: fiat, FiatDifference: w.FiatBalance.Sub(fiat),
			CacaoBalance: w.CacaoBalance, CacaoLedgerSum: cacao, CacaoDifference: w.CacaoBalance.Sub(cacao),
		})
	}
	return rows, nil
}

type memLedger struct{ *memory }

func (m memLedger) InsertEntries(_ context.Context, _ store.Execer, entries []store.LedgerEntryInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

type memTransactions struct{ *memory }

func (m memTransactions) Create(_ context.Context, _ store.Execer, in store.TransactionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[in.ID]; ok {
		return fmt.Errorf("duplicate transaction %s", in.ID)
	}
	m.transactions[in.ID] = models.Transaction{
		ID: in.ID, UserID: in.UserID, Type: in.Type, Status: in.Status,
		FiatAmount: in.FiatAmount, CacaoAmount: in.CacaoAmount, FeeAmount: in.FeeAmount,
		PriceAtExecution: in.PriceAtExecution, Reference: in.Reference, PaymentMethodID: in.PaymentMethodID,
		QuoteID: in.QuoteID, Notes: in.Notes, ResolvedBy: in.ResolvedBy,
	}
	m.order = append(m.order, in.ID)
	return nil
}

func (m memTransactions) GetByID(_ context.Context, id string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	return t, nil
}

func (m memTransactions) GetForUpdate(ctx context.Context, _ store.Getter, id string) (models.Transaction, error) {
	return m.GetByID(ctx, id)
}

func (m memTransactions) Resolve(_ context.Context, _ store.Execer, in store.ResolveInput) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[in.ID]
	if !ok || t.Status != models.StatusPending {
		return 0, nil
	}
	t.Status = in.Status
	if in.Notes != nil {
		t.Notes = in.Notes
	}
	resolvedBy := in.ResolvedBy
	t.ResolvedBy = &resolvedBy
	if in.CacaoAmount.Valid {
		t.CacaoAmount = in.CacaoAmount.Decimal
	}
	if in.PriceAtExecution.Valid {
		t.PriceAtExecution = in.PriceAtExecution
	}
	m.transactions[in.ID] = t
	return 1, nil
}

func (m memTransactions) ListPending(_ context.Context, limit, offset int) ([]models.PendingTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.PendingTransaction
	for _, id := range m.order {
		if t := m.transactions[id]; t.Status == models.StatusPending {
			rows = append(rows, models.PendingTransaction{Transaction: t})
		}
	}
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

type memDeposits struct{ *memory }

func (m memDeposits) Create(_ context.Context, _ store.Execer, d models.PhysicalDeposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits[d.ID] = d
	return nil
}

func (m memDeposits) GetByID(_ context.Context, id string) (models.PhysicalDeposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok {
		return models.PhysicalDeposit{}, sql.ErrNoRows
	}
	return d, nil
}

func (m memDeposits) GetByTransactionForUpdate(_ context.Context, _ store.Getter, transactionID string) (models.PhysicalDeposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deposits {
		if d.TransactionID == transactionID {
			return d, nil
		}
	}
	return models.PhysicalDeposit{}, sql.ErrNoRows
}

func (m memDeposits) UpdateMeasurements(_ context.Context, _ store.Execer, d models.PhysicalDeposit) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.deposits[d.ID]
	if !ok || current.FinalTokensIssued.Valid {
		return 0, nil
	}
	current.GrossWeight = d.GrossWeight
	current.QualityGrade = d.QualityGrade
	current.MoistureContent = d.MoistureContent
	current.FermentationGrade = d.FermentationGrade
	current.ImpuritiesContent = d.ImpuritiesContent
	m.deposits[d.ID] = current
	return 1, nil
}

func (m memDeposits) RecordConversion(_ context.Context, _ store.Execer, id, inspectorID string, factor, tokens decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok || d.FinalTokensIssued.Valid {
		return 0, nil
	}
	d.ConversionFactor = decimal.NewNullDecimal(factor)
	d.FinalTokensIssued = decimal.NewNullDecimal(tokens)
	d.InspectorID = &inspectorID
	m.deposits[id] = d
	return 1, nil
}

func (m memDeposits) MarkInspected(_ context.Context, _ store.Execer, id, inspectorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deposits[id]
	d.InspectorID = &inspectorID
	m.deposits[id] = d
	return nil
}

type memCenters struct{ *memory }

func (m memCenters) GetByID(_ context.Context, _ store.Getter, id string) (models.CollectionCenter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.centers[id]
	if !ok {
		return models.CollectionCenter{}, sql.ErrNoRows
	}
	return c, nil
}

type memReserve struct{ *memory }

func (m memReserve) Get(_ context.Context) (reserve.Reserve, error) {
	return m.snapshotReserve(), nil
}

func (m memReserve) GetForUpdate(ctx context.Context, _ store.Getter) (reserve.Reserve, error) {
	return m.Get(ctx)
}

func (m memReserve) Save(_ context.Context, _ store.Execer, r reserve.Reserve) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserve = r
	return nil
}

func (m memReserve) GetTreasury(_ context.Context) (reserve.Treasury, error) {
	return m.snapshotTreasury(), nil
}

func (m memReserve) GetTreasuryForUpdate(ctx context.Context, _ store.Getter) (reserve.Treasury, error) {
	return m.GetTreasury(ctx)
}

func (m memReserve) SaveTreasury(_ context.Context, _ store.Execer, t reserve.Treasury) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treasury = t
	return nil
}

func (m memReserve) RecordTreasuryWithdrawal(_ context.Context, _ store.Execer, w store.TreasuryWithdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdrawals = append(m.withdrawals, w)
	return nil
}

func (m memReserve) RecordStockIntake(_ context.Context, _ store.Execer, in store.StockIntake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intakes = append(m.intakes, in)
	return nil
}

type memConfig struct{ *memory }

func (m memConfig) Get(_ context.Context, _ store.Getter) (models.SystemConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config, nil
}

func (m memConfig) Update(_ context.Context, _ store.Execer, cfg models.SystemConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
	return nil
}

type memQuotes struct{ *memory }

func (m memQuotes) Create(_ context.Context, _ store.Execer, q models.PriceQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.ID] = q
	return nil
}

func (m memQuotes) GetForUpdate(_ context.Context, _ store.Getter, id, userID string) (models.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.UserID != userID {
		return models.PriceQuote{}, sql.ErrNoRows
	}
	return q, nil
}

func (m memQuotes) Consume(_ context.Context, _ store.Execer, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok || q.ConsumedAt != nil {
		return 0, nil
	}
	now := q.ExpiresAt
	q.ConsumedAt = &now
	m.quotes[id] = q
	return 1, nil
}

type memMethods struct{ *memory }

func (m memMethods) GetByID(_ context.Context, _ store.Getter, id, userID string) (models.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.methods[id]
	if !ok || pm.UserID != userID {
		return models.PaymentMethod{}, sql.ErrNoRows
	}
	return pm, nil
}

type memAudit struct{ *memory }

func (m memAudit) Log(_ context.Context, _ store.Execer, actorID, action, entityType, entityID, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, action+":"+entityID)
	return nil
}

type memAdmins struct{ *memory }

func (m memAdmins) Authorized(_ context.Context, userID, role string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles[userID] {
		if r == role || r == "super" {
			return true, nil
		}
	}
	return false, nil
}

type recordingHub struct {
	mu      sync.Mutex
	wallets []models.Wallet
}

func (h *recordingHub) BroadcastWallet(w models.Wallet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wallets = append(h.wallets, w)
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) kinds() []events.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]events.Kind, 0, len(b.events))
	for _, e := range b.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func memoryStores(m *memory) Stores {
	return Stores{
		Wallets:           memWallets{m},
		Ledger:            memLedger{m},
		Transactions:      memTransactions{m},
		PhysicalDeposits:  memDeposits{m},
		CollectionCenters: memCenters{m},
		Reserve:           memReserve{m},
		SystemConfig:      memConfig{m},
		Quotes:            memQuotes{m},
		PaymentMethods:    memMethods{m},
		Audit:             memAudit{m},
	}
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
