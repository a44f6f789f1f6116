package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/uptrace/bun"
)

type RarityRepository interface {
	GetAll(ctx context.Context) ([]*models.Rarity, error)
	GetByID(ctx context.Context, rarityID string) (*models.Rarity, error)
}

type rarityRepository struct {
	db *bun.DB
}

func NewRarityRepository(db *bun.DB) RarityRepository {
	return &rarityRepository{db: db}
}

func (r *rarityRepository) GetAll(ctx context.Context) ([]*models.Rarity, error) {
	var rarities []*models.Rarity
	err := r.db.NewSelect().
		Model(&rarities).
		Order("rank ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get rarities: %w", err)
	}
	return rarities, nil
}

func (r *rarityRepository) GetByID(ctx context.Context, rarityID string) (*models.Rarity, error) {
	rarity := new(models.Rarity)
	err := r.db.NewSelect().
		Model(rarity).
		Where("rarity_id = ?", rarityID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "rarity", ID: rarityID}
		}
		return nil, fmt.Errorf("failed to get rarity: %w", err)
	}
	return rarity, nil
}
