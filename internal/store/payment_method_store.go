package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cacaowallet/internal/models"
)

type PaymentMethodStore struct {
	db DB
}

type paymentMethodRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Type      string    `db:"type"`
	Label     *string   `db:"label"`
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

func NewPaymentMethodStore(db DB) *PaymentMethodStore {
	return &PaymentMethodStore{db: db}
}

func (s *PaymentMethodStore) Create(ctx context.Context, tx Execer, pm models.PaymentMethod) error {
	if pm.Details == nil {
		return models.ErrUnknownPaymentMethod
	}
	details, err := json.Marshal(pm.Details)
	if err != nil {
		return fmt.Errorf("encode payment details: %w", err)
	}
	var label *string
	if pm.Label != "" {
		label = &pm.Label
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_methods (id, user_id, type, label, details)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, pm.ID, pm.UserID, string(pm.Details.Kind()), label, string(details))
	return err
}

// GetByID loads a payment method owned by userID.
func (s *PaymentMethodStore) GetByID(ctx context.Context, q Getter, id, userID string) (models.PaymentMethod, error) {
	if q == nil {
		q = s.db
	}
	var row paymentMethodRow
	err := q.GetContext(ctx, &row, `
		SELECT id, user_id, type, label, details::text AS details, created_at
		FROM payment_methods
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return models.PaymentMethod{}, err
	}
	return row.toModel()
}

func (s *PaymentMethodStore) ListByUser(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	var rows []paymentMethodRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, type, label, details::text AS details, created_at
		FROM payment_methods
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	methods := make([]models.PaymentMethod, 0, len(rows))
	for _, row := range rows {
		pm, err := row.toModel()
		if err != nil {
			return nil, err
		}
		methods = append(methods, pm)
	}
	return methods, nil
}

func (row paymentMethodRow) toModel() (models.PaymentMethod, error) {
	kind := models.PaymentMethodType(row.Type)
	details, err := models.DecodePaymentDetails(kind, []byte(row.Details))
	if err != nil {
		return models.PaymentMethod{}, err
	}
	return models.PaymentMethod{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      kind,
		Label:     derefStringPtr(row.Label),
		Details:   details,
		CreatedAt: row.CreatedAt,
	}, nil
}
