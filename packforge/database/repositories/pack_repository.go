package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/uptrace/bun"
)

type PackRepository interface {
	Create(ctx context.Context, pack *models.Pack) error
	GetByID(ctx context.Context, packID string) (*models.Pack, error)
	GetByEventID(ctx context.Context, eventID string) ([]*models.Pack, error)
}

type packRepository struct {
	db *bun.DB
}

func NewPackRepository(db *bun.DB) PackRepository {
	return &packRepository{db: db}
}

func (r *packRepository) Create(ctx context.Context, pack *models.Pack) error {
	pack.CreatedAt = time.Now()
	pack.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().Model(pack).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create pack: %w", err)
	}
	return nil
}

func (r *packRepository) GetByID(ctx context.Context, packID string) (*models.Pack, error) {
	pack := new(models.Pack)
	err := r.db.NewSelect().
		Model(pack).
		Where("pack_id = ?", packID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "pack", ID: packID}
		}
		return nil, fmt.Errorf("failed to get pack: %w", err)
	}
	return pack, nil
}

func (r *packRepository) GetByEventID(ctx context.Context, eventID string) ([]*models.Pack, error) {
	var packs []*models.Pack
	err := r.db.NewSelect().
		Model(&packs).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get packs for event: %w", err)
	}
	return packs, nil
}
