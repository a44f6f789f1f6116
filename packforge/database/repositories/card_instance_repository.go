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

// ErrCardNumberTaken is returned when an insert lost the race for a card
// number. The caller retries with the next free number.
var ErrCardNumberTaken = errors.New("card number already allocated")

type CardInstanceRepository interface {
	Create(ctx context.Context, instance *models.CardInstance) error
	GetByID(ctx context.Context, instanceID string) (*models.CardInstance, error)
	GetByIDs(ctx context.Context, instanceIDs []string) ([]*models.CardInstance, error)
	AllocatedNumbers(ctx context.Context, designID, rarityID string) ([]int, error)
	CountAllocated(ctx context.Context, designIDs []string) (map[string]map[string]int, error)
	CountUnopenedByRarity(ctx context.Context, designIDs []string) (map[string]int, error)
}

type cardInstanceRepository struct {
	db *bun.DB
}

func NewCardInstanceRepository(db *bun.DB) CardInstanceRepository {
	return &cardInstanceRepository{db: db}
}

func (r *cardInstanceRepository) Create(ctx context.Context, instance *models.CardInstance) error {
	instance.CreatedAt = time.Now()
	instance.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().Model(instance).Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("instance %s: %w", instance.InstanceID, ErrCardNumberTaken)
		}
		return fmt.Errorf("failed to create card instance: %w", err)
	}
	return nil
}

func (r *cardInstanceRepository) GetByID(ctx context.Context, instanceID string) (*models.CardInstance, error) {
	instance := new(models.CardInstance)
	err := r.db.NewSelect().
		Model(instance).
		Where("instance_id = ?", instanceID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "card instance", ID: instanceID}
		}
		return nil, fmt.Errorf("failed to get card instance: %w", err)
	}
	return instance, nil
}

func (r *cardInstanceRepository) GetByIDs(ctx context.Context, instanceIDs []string) ([]*models.CardInstance, error) {
	if len(instanceIDs) == 0 {
		return nil, nil
	}

	var instances []*models.CardInstance
	err := r.db.NewSelect().
		Model(&instances).
		Where("instance_id IN (?)", bun.In(instanceIDs)).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get card instances: %w", err)
	}
	return instances, nil
}

// AllocatedNumbers returns every card number already taken for the pair,
// sorted ascending.
func (r *cardInstanceRepository) AllocatedNumbers(ctx context.Context, designID, rarityID string) ([]int, error) {
	var numbers []int
	err := r.db.NewSelect().
		Model((*models.CardInstance)(nil)).
		Column("card_number").
		Where("design_id = ? AND rarity_id = ?", designID, rarityID).
		Order("card_number ASC").
		Scan(ctx, &numbers)

	if err != nil {
		return nil, fmt.Errorf("failed to get allocated numbers: %w", err)
	}
	return numbers, nil
}

// CountAllocated returns per design, per rarity, how many instances exist.
func (r *cardInstanceRepository) CountAllocated(ctx context.Context, designIDs []string) (map[string]map[string]int, error) {
	counts := make(map[string]map[string]int)
	if len(designIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		DesignID string `bun:"design_id"`
		RarityID string `bun:"rarity_id"`
		Count    int    `bun:"count"`
	}

	err := r.db.NewSelect().
		Model((*models.CardInstance)(nil)).
		ColumnExpr("design_id, rarity_id, COUNT(*) AS count").
		Where("design_id IN (?)", bun.In(designIDs)).
		GroupExpr("design_id, rarity_id").
		Scan(ctx, &rows)

	if err != nil {
		return nil, fmt.Errorf("failed to count allocated instances: %w", err)
	}

	for _, row := range rows {
		if counts[row.DesignID] == nil {
			counts[row.DesignID] = make(map[string]int)
		}
		counts[row.DesignID][row.RarityID] = row.Count
	}
	return counts, nil
}

// CountUnopenedByRarity counts instances still sitting in unopened packs,
// grouped by rarity.
func (r *cardInstanceRepository) CountUnopenedByRarity(ctx context.Context, designIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(designIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		RarityID string `bun:"rarity_id"`
		Count    int    `bun:"count"`
	}

	err := r.db.NewSelect().
		Model((*models.CardInstance)(nil)).
		ColumnExpr("rarity_id, COUNT(*) AS count").
		Where("design_id IN (?)", bun.In(designIDs)).
		Where("opened_at IS NULL").
		GroupExpr("rarity_id").
		Scan(ctx, &rows)

	if err != nil {
		return nil, fmt.Errorf("failed to count unopened instances: %w", err)
	}

	for _, row := range rows {
		counts[row.RarityID] = row.Count
	}
	return counts, nil
}
