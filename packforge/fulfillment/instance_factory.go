package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

const (
	maxAllocationAttempts = 5
	maxBestRarityAttempts = 5
)

// InstanceFactory is the only component that creates card instances.
type InstanceFactory struct {
	designRepo   repositories.CardDesignRepository
	instanceRepo repositories.CardInstanceRepository
	allocator    *Allocator
	rarities     *models.RaritySet
}

func NewInstanceFactory(designRepo repositories.CardDesignRepository, instanceRepo repositories.CardInstanceRepository, allocator *Allocator, rarities *models.RaritySet) *InstanceFactory {
	return &InstanceFactory{
		designRepo:   designRepo,
		instanceRepo: instanceRepo,
		allocator:    allocator,
		rarities:     rarities,
	}
}

// CreateInstance allocates the next card number, persists the instance and
// updates the design's best-rarity cache. A lost allocation race surfaces
// as a unique violation on insert; the factory then re-reads for a fresh
// number rather than ever reusing one.
func (f *InstanceFactory) CreateInstance(ctx context.Context, design *models.CardDesign, rarityID string, ownerUserID *string, minterUserID, packID string) (*models.CardInstance, error) {
	var instance *models.CardInstance

	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		number, total, err := f.allocator.NextCardNumber(ctx, design.DesignID, rarityID)
		if err != nil {
			return nil, err
		}

		candidate := &models.CardInstance{
			InstanceID:   models.NewInstanceID(design.SeasonID, design.DesignID, rarityID, number),
			DesignID:     design.DesignID,
			RarityID:     rarityID,
			CardNumber:   number,
			TotalOfType:  total,
			OwnerUserID:  ownerUserID,
			MinterUserID: minterUserID,
			PackID:       packID,
		}

		err = f.instanceRepo.Create(ctx, candidate)
		if err == nil {
			instance = candidate
			break
		}
		if errors.Is(err, repositories.ErrCardNumberTaken) {
			slog.Debug("Card number race lost, retrying",
				slog.String("type", "pool"),
				slog.String("design_id", design.DesignID),
				slog.String("rarity_id", rarityID),
				slog.Int("card_number", number))
			continue
		}
		return nil, err
	}

	if instance == nil {
		return nil, fmt.Errorf("gave up allocating a card number for design %s rarity %s after %d attempts",
			design.DesignID, rarityID, maxAllocationAttempts)
	}

	if err := f.recordBestRarity(ctx, design.DesignID, rarityID); err != nil {
		// The cache is best-effort and monotone; a failed update here must
		// not fail the mint.
		slog.Warn("Failed to update best rarity cache",
			slog.String("type", "db"),
			slog.String("design_id", design.DesignID),
			slog.String("error", err.Error()))
	}

	return instance, nil
}

// recordBestRarity bumps the design's best-rarity cache if the new rarity
// outranks the stored one. Compare-and-set against the value just read, so
// a concurrent rarer write is never overwritten with a less rare one.
func (f *InstanceFactory) recordBestRarity(ctx context.Context, designID, rarityID string) error {
	for attempt := 0; attempt < maxBestRarityAttempts; attempt++ {
		design, err := f.designRepo.GetByID(ctx, designID)
		if err != nil {
			return err
		}

		if design.BestRarityFound != nil && !f.rarities.Outranks(rarityID, *design.BestRarityFound) {
			return nil
		}

		applied, err := f.designRepo.SetBestRarityFound(ctx, designID, design.BestRarityFound, rarityID)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
	}
	return fmt.Errorf("best rarity compare-and-set kept failing for design %s", designID)
}
