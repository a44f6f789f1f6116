package fulfillment

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"
	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

// CardPool is the state of a pack type's draw pool at one point in time.
// Counts are read fresh on every resolution because concurrent fulfillments
// move them between calls.
type CardPool struct {
	PackTypeID string
	Designs    []*models.CardDesign

	// RemainingByRarity is unallocated supply per rarity across the pool.
	RemainingByRarity map[string]int

	// DesignRemaining breaks the same numbers down per design, for card
	// selection.
	DesignRemaining map[string]map[string]int

	// UnopenedByRarity counts instances already reserved in packs but not
	// yet opened. They still count toward draw-odds denominators.
	UnopenedByRarity map[string]int
}

func (p *CardPool) UnopenedCount() int {
	total := 0
	for _, n := range p.UnopenedByRarity {
		total += n
	}
	return total
}

// TotalRemaining is the odds denominator: unallocated supply plus reserved
// but unopened instances.
func (p *CardPool) TotalRemaining() int {
	total := p.UnopenedCount()
	for _, n := range p.RemainingByRarity {
		total += n
	}
	return total
}

func (p *CardPool) Design(designID string) (*models.CardDesign, bool) {
	for _, d := range p.Designs {
		if d.DesignID == designID {
			return d, true
		}
	}
	return nil, false
}

const designCacheSize = 128

// Resolver computes card pools for pack types.
type Resolver struct {
	designRepo   repositories.CardDesignRepository
	instanceRepo repositories.CardInstanceRepository
	rarities     *models.RaritySet

	// designCache holds design lists for custom pack types only. Pack types
	// are immutable, so the list cannot change; counts are never cached.
	designCache *lru.Cache
}

func NewResolver(designRepo repositories.CardDesignRepository, instanceRepo repositories.CardInstanceRepository, rarities *models.RaritySet) *Resolver {
	cache, _ := lru.New(designCacheSize)
	return &Resolver{
		designRepo:   designRepo,
		instanceRepo: instanceRepo,
		rarities:     rarities,
		designCache:  cache,
	}
}

func (r *Resolver) ResolvePool(ctx context.Context, packType *models.PackType) (*CardPool, error) {
	designs, err := r.poolDesigns(ctx, packType)
	if err != nil {
		return nil, err
	}
	if len(designs) == 0 {
		return nil, fmt.Errorf("pack type %s resolves to an empty pool", packType.PackTypeID)
	}

	designIDs := make([]string, len(designs))
	for i, d := range designs {
		designIDs[i] = d.DesignID
	}

	allocated, err := r.instanceRepo.CountAllocated(ctx, designIDs)
	if err != nil {
		return nil, err
	}
	unopened, err := r.instanceRepo.CountUnopenedByRarity(ctx, designIDs)
	if err != nil {
		return nil, err
	}

	pool := &CardPool{
		PackTypeID:        packType.PackTypeID,
		Designs:           designs,
		RemainingByRarity: make(map[string]int),
		DesignRemaining:   make(map[string]map[string]int),
		UnopenedByRarity:  unopened,
	}

	for _, design := range designs {
		perDesign := make(map[string]int)
		for _, detail := range design.RarityDetails {
			if rarity, ok := r.rarities.Get(detail.RarityID); ok && rarity.IsSynthetic() {
				continue
			}
			remaining := detail.Count - allocated[design.DesignID][detail.RarityID]
			if remaining < 0 {
				return nil, &NegativeRemainingError{
					DesignID:  design.DesignID,
					RarityID:  detail.RarityID,
					Remaining: remaining,
				}
			}
			perDesign[detail.RarityID] = remaining
			pool.RemainingByRarity[detail.RarityID] += remaining
		}
		pool.DesignRemaining[design.DesignID] = perDesign
	}

	slog.Debug("Resolved card pool",
		slog.String("type", "pool"),
		slog.String("pack_type_id", packType.PackTypeID),
		slog.Int("designs", len(designs)),
		slog.Int("total_remaining", pool.TotalRemaining()))

	return pool, nil
}

func (r *Resolver) poolDesigns(ctx context.Context, packType *models.PackType) ([]*models.CardDesign, error) {
	switch packType.Category {
	case models.PackCategorySeason:
		if packType.SeasonID == nil {
			return nil, fmt.Errorf("season pack type %s has no season", packType.PackTypeID)
		}
		return r.designRepo.GetBySeasonID(ctx, *packType.SeasonID)

	case models.PackCategoryCustom:
		if cached, ok := r.designCache.Get(packType.PackTypeID); ok {
			return cached.([]*models.CardDesign), nil
		}
		designs, err := r.designRepo.GetByIDs(ctx, packType.DesignIDs)
		if err != nil {
			return nil, err
		}
		r.designCache.Add(packType.PackTypeID, designs)
		return designs, nil

	default:
		return nil, fmt.Errorf("unknown pack type category %q", packType.Category)
	}
}
