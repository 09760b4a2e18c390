package store

import (
	"context"

	"cacaowallet/internal/models"
)

type SystemConfigStore struct {
	db DB
}

const systemConfigColumns = `buy_price, sell_price, buy_fee_percent, sell_fee_percent, withdrawal_fee, maintenance_fee, updated_by, updated_at`

func NewSystemConfigStore(db DB) *SystemConfigStore {
	return &SystemConfigStore{db: db}
}

// Get reads the singleton through q, which is either the pool or the
// settlement transaction.
func (s *SystemConfigStore) Get(ctx context.Context, q Getter) (models.SystemConfig, error) {
	if q == nil {
		q = s.db
	}
	var row models.SystemConfig
	err := q.GetContext(ctx, &row, `SELECT `+systemConfigColumns+` FROM system_config WHERE id = 1`)
	return row, err
}

func (s *SystemConfigStore) Update(ctx context.Context, tx Execer, cfg models.SystemConfig) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE system_config
		SET buy_price = $1, sell_price = $2, buy_fee_percent = $3, sell_fee_percent = $4,
		    withdrawal_fee = $5, maintenance_fee = $6, updated_by = $7, updated_at = NOW()
		WHERE id = 1
	`, cfg.BuyPrice, cfg.SellPrice, cfg.BuyFeePercent, cfg.SellFeePercent, cfg.WithdrawalFee, cfg.MaintenanceFee, cfg.UpdatedBy)
	return err
}

// EnsureSeeded inserts the singleton when the table is empty and leaves an
// existing row untouched. It reports whether a row was written.
func (s *SystemConfigStore) EnsureSeeded(ctx context.Context, cfg models.SystemConfig) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO system_config (id, buy_price, sell_price, buy_fee_percent, sell_fee_percent, withdrawal_fee, maintenance_fee)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, cfg.BuyPrice, cfg.SellPrice, cfg.BuyFeePercent, cfg.SellFeePercent, cfg.WithdrawalFee, cfg.MaintenanceFee)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}
