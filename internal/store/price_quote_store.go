package store

import (
	"context"

	"cacaowallet/internal/models"
)

type PriceQuoteStore struct {
	db DB
}

func NewPriceQuoteStore(db DB) *PriceQuoteStore {
	return &PriceQuoteStore{db: db}
}

func (s *PriceQuoteStore) Create(ctx context.Context, tx Execer, quote models.PriceQuote) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO price_quotes (id, user_id, fiat_amount, fee_amount, cacao_amount, price, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, quote.ID, quote.UserID, quote.FiatAmount, quote.FeeAmount, quote.CacaoAmount, quote.Price, quote.ExpiresAt)
	return err
}

func (s *PriceQuoteStore) GetForUpdate(ctx context.Context, tx Getter, id, userID string) (models.PriceQuote, error) {
	var row models.PriceQuote
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, fiat_amount, fee_amount, cacao_amount, price, expires_at, consumed_at
		FROM price_quotes
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, id, userID)
	if err != nil {
		return models.PriceQuote{}, err
	}
	return row, nil
}

// Consume marks an unconsumed quote as used and returns the rows changed.
func (s *PriceQuoteStore) Consume(ctx context.Context, tx Execer, id string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE price_quotes
		SET consumed_at = NOW()
		WHERE id = $1 AND consumed_at IS NULL
	`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
