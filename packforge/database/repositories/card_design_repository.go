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

type CardDesignRepository interface {
	GetByID(ctx context.Context, designID string) (*models.CardDesign, error)
	GetByIDs(ctx context.Context, designIDs []string) ([]*models.CardDesign, error)
	GetBySeasonID(ctx context.Context, seasonID string) ([]*models.CardDesign, error)
	SetBestRarityFound(ctx context.Context, designID string, expected *string, next string) (bool, error)
}

type cardDesignRepository struct {
	db *bun.DB
}

func NewCardDesignRepository(db *bun.DB) CardDesignRepository {
	return &cardDesignRepository{db: db}
}

func (r *cardDesignRepository) GetByID(ctx context.Context, designID string) (*models.CardDesign, error) {
	design := new(models.CardDesign)
	err := r.db.NewSelect().
		Model(design).
		Where("design_id = ?", designID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "card design", ID: designID}
		}
		return nil, fmt.Errorf("failed to get card design: %w", err)
	}
	return design, nil
}

func (r *cardDesignRepository) GetByIDs(ctx context.Context, designIDs []string) ([]*models.CardDesign, error) {
	if len(designIDs) == 0 {
		return nil, nil
	}

	var designs []*models.CardDesign
	err := r.db.NewSelect().
		Model(&designs).
		Where("design_id IN (?)", bun.In(designIDs)).
		Order("name ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get card designs: %w", err)
	}
	return designs, nil
}

func (r *cardDesignRepository) GetBySeasonID(ctx context.Context, seasonID string) ([]*models.CardDesign, error) {
	var designs []*models.CardDesign
	err := r.db.NewSelect().
		Model(&designs).
		Where("season_id = ?", seasonID).
		Order("name ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get card designs for season: %w", err)
	}
	return designs, nil
}

// SetBestRarityFound is a compare-and-set: the update only applies while the
// stored value still equals expected, so a concurrent rarer update is never
// clobbered by a less rare one. Returns false when the expectation failed and
// the caller should re-read and retry.
func (r *cardDesignRepository) SetBestRarityFound(ctx context.Context, designID string, expected *string, next string) (bool, error) {
	query := r.db.NewUpdate().
		Model((*models.CardDesign)(nil)).
		Set("best_rarity_found = ?", next).
		Set("updated_at = ?", time.Now()).
		Where("design_id = ?", designID)

	if expected == nil {
		query = query.Where("best_rarity_found IS NULL")
	} else {
		query = query.Where("best_rarity_found = ?", *expected)
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to update best rarity found: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}
