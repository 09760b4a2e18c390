package store

import (
	"context"

	"cacaowallet/internal/models"
)

type CollectionCenterStore struct {
	db DB
}

func NewCollectionCenterStore(db DB) *CollectionCenterStore {
	return &CollectionCenterStore{db: db}
}

func (s *CollectionCenterStore) List(ctx context.Context) ([]models.CollectionCenter, error) {
	var rows []models.CollectionCenter
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, location, capacity, is_active, created_at
		FROM collection_centers
		WHERE is_active = TRUE
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CollectionCenterStore) GetByID(ctx context.Context, q Getter, id string) (models.CollectionCenter, error) {
	if q == nil {
		q = s.db
	}
	var row models.CollectionCenter
	err := q.GetContext(ctx, &row, `
		SELECT id, name, location, capacity, is_active, created_at
		FROM collection_centers
		WHERE id = $1
	`, id)
	if err != nil {
		return models.CollectionCenter{}, err
	}
	return row, nil
}
