package store

import (
	"context"

	"cacaowallet/internal/models"

	"github.com/shopspring/decimal"
)

type PhysicalDepositStore struct {
	db DB
}

const physicalDepositColumns = `id, transaction_id, user_id, collection_center_id, gross_weight, quality_grade,
	moisture_content, fermentation_grade, impurities_content, conversion_factor, final_tokens_issued,
	inspector_id, verified_at, created_at`

func NewPhysicalDepositStore(db DB) *PhysicalDepositStore {
	return &PhysicalDepositStore{db: db}
}

func (s *PhysicalDepositStore) Create(ctx context.Context, tx Execer, d models.PhysicalDeposit) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO physical_deposits (id, transaction_id, user_id, collection_center_id, gross_weight,
		                               quality_grade, moisture_content, fermentation_grade, impurities_content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.TransactionID, d.UserID, d.CollectionCenterID, d.GrossWeight,
		string(d.QualityGrade), d.MoistureContent, d.FermentationGrade, d.ImpuritiesContent)
	return err
}

func (s *PhysicalDepositStore) GetByID(ctx context.Context, id string) (models.PhysicalDeposit, error) {
	var row models.PhysicalDeposit
	err := s.db.GetContext(ctx, &row, `SELECT `+physicalDepositColumns+` FROM physical_deposits WHERE id = $1`, id)
	if err != nil {
		return models.PhysicalDeposit{}, err
	}
	return row, nil
}

func (s *PhysicalDepositStore) GetByTransactionForUpdate(ctx context.Context, tx Getter, transactionID string) (models.PhysicalDeposit, error) {
	var row models.PhysicalDeposit
	err := tx.GetContext(ctx, &row, `
		SELECT `+physicalDepositColumns+`
		FROM physical_deposits
		WHERE transaction_id = $1
		FOR UPDATE
	`, transactionID)
	if err != nil {
		return models.PhysicalDeposit{}, err
	}
	return row, nil
}

// UpdateMeasurements replaces the declared grading with the inspector's
// figures. Only deposits that have not been converted can change.
func (s *PhysicalDepositStore) UpdateMeasurements(ctx context.Context, tx Execer, d models.PhysicalDeposit) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE physical_deposits
		SET gross_weight = $2, quality_grade = $3, moisture_content = $4, fermentation_grade = $5, impurities_content = $6
		WHERE id = $1 AND final_tokens_issued IS NULL
	`, d.ID, d.GrossWeight, string(d.QualityGrade), d.MoistureContent, d.FermentationGrade, d.ImpuritiesContent)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordConversion stamps the conversion result once. A second call affects
// no rows.
func (s *PhysicalDepositStore) RecordConversion(ctx context.Context, tx Execer, id, inspectorID string, factor, tokens decimal.Decimal) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE physical_deposits
		SET conversion_factor = $2, final_tokens_issued = $3, inspector_id = $4, verified_at = NOW()
		WHERE id = $1 AND final_tokens_issued IS NULL
	`, id, factor, tokens, inspectorID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkInspected records who inspected a rejected deposit.
func (s *PhysicalDepositStore) MarkInspected(ctx context.Context, tx Execer, id, inspectorID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE physical_deposits
		SET inspector_id = $2, verified_at = NOW()
		WHERE id = $1 AND final_tokens_issued IS NULL
	`, id, inspectorID)
	return err
}

func (s *PhysicalDepositStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.PhysicalDeposit, error) {
	var rows []models.PhysicalDeposit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+physicalDepositColumns+`
		FROM physical_deposits
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
