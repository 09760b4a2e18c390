package store

import (
	"context"
	"time"

	"cacaowallet/internal/reserve"

	"github.com/shopspring/decimal"
)

// ReserveStore persists the global reserve and treasury singleton rows.
type ReserveStore struct {
	db DB
}

type TreasuryWithdrawal struct {
	ID          string          `db:"id" json:"id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Destination string          `db:"destination" json:"destination"`
	Notes       *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy   string          `db:"created_by" json:"created_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// StockIntake is platform-owned cacao received into the reserve without
// issuing tokens to anyone.
type StockIntake struct {
	ID                 string          `db:"id" json:"id"`
	Grams              decimal.Decimal `db:"grams" json:"grams"`
	CollectionCenterID string          `db:"collection_center_id" json:"collection_center_id"`
	Notes              *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy          string          `db:"created_by" json:"created_by"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

func NewReserveStore(db DB) *ReserveStore {
	return &ReserveStore{db: db}
}

func (s *ReserveStore) Get(ctx context.Context) (reserve.Reserve, error) {
	var row reserve.Reserve
	err := s.db.GetContext(ctx, &row, `
		SELECT total_cacao_stock, tokens_issued, available_stock
		FROM global_reserve
		WHERE id = 1
	`)
	return row, err
}

func (s *ReserveStore) GetForUpdate(ctx context.Context, tx Getter) (reserve.Reserve, error) {
	var row reserve.Reserve
	err := tx.GetContext(ctx, &row, `
		SELECT total_cacao_stock, tokens_issued, available_stock
		FROM global_reserve
		WHERE id = 1
		FOR UPDATE
	`)
	return row, err
}

func (s *ReserveStore) Save(ctx context.Context, tx Execer, r reserve.Reserve) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE global_reserve
		SET total_cacao_stock = $1, tokens_issued = $2, available_stock = $3, updated_at = NOW()
		WHERE id = 1
	`, r.TotalCacaoStock, r.TokensIssued, r.AvailableStock)
	return err
}

func (s *ReserveStore) GetTreasury(ctx context.Context) (reserve.Treasury, error) {
	var row reserve.Treasury
	err := s.db.GetContext(ctx, &row, `
		SELECT total_fees_collected, total_withdrawn
		FROM treasury
		WHERE id = 1
	`)
	return row, err
}

func (s *ReserveStore) GetTreasuryForUpdate(ctx context.Context, tx Getter) (reserve.Treasury, error) {
	var row reserve.Treasury
	err := tx.GetContext(ctx, &row, `
		SELECT total_fees_collected, total_withdrawn
		FROM treasury
		WHERE id = 1
		FOR UPDATE
	`)
	return row, err
}

func (s *ReserveStore) SaveTreasury(ctx context.Context, tx Execer, t reserve.Treasury) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE treasury
		SET total_fees_collected = $1, total_withdrawn = $2, updated_at = NOW()
		WHERE id = 1
	`, t.TotalFeesCollected, t.TotalWithdrawn)
	return err
}

func (s *ReserveStore) RecordTreasuryWithdrawal(ctx context.Context, tx Execer, w TreasuryWithdrawal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO treasury_withdrawals (id, amount, destination, notes, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, w.ID, w.Amount, w.Destination, w.Notes, w.CreatedBy)
	return err
}

func (s *ReserveStore) ListTreasuryWithdrawals(ctx context.Context, limit, offset int) ([]TreasuryWithdrawal, error) {
	var rows []TreasuryWithdrawal
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, amount, destination, notes, created_by, created_at
		FROM treasury_withdrawals
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ReserveStore) RecordStockIntake(ctx context.Context, tx Execer, in StockIntake) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_intakes (id, grams, collection_center_id, notes, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, in.ID, in.Grams, in.CollectionCenterID, in.Notes, in.CreatedBy)
	return err
}

func (s *ReserveStore) ListStockIntakes(ctx context.Context, limit, offset int) ([]StockIntake, error) {
	var rows []StockIntake
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, grams, collection_center_id, notes, created_by, created_at
		FROM stock_intakes
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
