package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/uptrace/bun"
)

type PackTypeRepository interface {
	GetByID(ctx context.Context, packTypeID string) (*models.PackType, error)
	GetAll(ctx context.Context) ([]*models.PackType, error)
}

type packTypeRepository struct {
	db *bun.DB
}

func NewPackTypeRepository(db *bun.DB) PackTypeRepository {
	return &packTypeRepository{db: db}
}

func (r *packTypeRepository) GetByID(ctx context.Context, packTypeID string) (*models.PackType, error) {
	packType := new(models.PackType)
	err := r.db.NewSelect().
		Model(packType).
		Where("pack_type_id = ?", packTypeID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "pack type", ID: packTypeID}
		}
		return nil, fmt.Errorf("failed to get pack type: %w", err)
	}
	return packType, nil
}

func (r *packTypeRepository) GetAll(ctx context.Context) ([]*models.PackType, error) {
	var packTypes []*models.PackType
	err := r.db.NewSelect().
		Model(&packTypes).
		Order("name ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get pack types: %w", err)
	}
	return packTypes, nil
}
