package fulfillment

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

// Allocator assigns card numbers and computes draw odds for a pool.
type Allocator struct {
	designRepo   repositories.CardDesignRepository
	instanceRepo repositories.CardInstanceRepository
	rarities     *models.RaritySet
}

func NewAllocator(designRepo repositories.CardDesignRepository, instanceRepo repositories.CardInstanceRepository, rarities *models.RaritySet) *Allocator {
	return &Allocator{
		designRepo:   designRepo,
		instanceRepo: instanceRepo,
		rarities:     rarities,
	}
}

// NextCardNumber returns the smallest unused number in [1, totalOfType] for
// the pair, plus totalOfType itself. The read is optimistic: the unique
// index on (design_id, rarity_id, card_number) decides races at insert
// time, and the losing writer calls here again for a fresh number.
func (a *Allocator) NextCardNumber(ctx context.Context, designID, rarityID string) (int, int, error) {
	design, err := a.designRepo.GetByID(ctx, designID)
	if err != nil {
		return 0, 0, err
	}

	total, ok := design.CountFor(rarityID)
	if !ok {
		return 0, 0, fmt.Errorf("design %s has no rarity %s", designID, rarityID)
	}

	taken, err := a.instanceRepo.AllocatedNumbers(ctx, designID, rarityID)
	if err != nil {
		return 0, 0, err
	}
	if len(taken) > total {
		return 0, 0, &NegativeRemainingError{
			DesignID:  designID,
			RarityID:  rarityID,
			Remaining: total - len(taken),
		}
	}

	// taken is sorted ascending; the first gap is the answer.
	next := 1
	for _, n := range taken {
		if n != next {
			break
		}
		next++
	}
	if next > total {
		return 0, 0, fmt.Errorf("design %s rarity %s (%d/%d): %w",
			designID, rarityID, len(taken), total, ErrCapacityExhausted)
	}
	return next, total, nil
}

// EstimateShitPackOdds is the probability that drawing remainingCardCount
// cards from the pool yields only bottom-tier cards. Computed as
// independent draws over a without-replacement pool; the slight bias is a
// deliberate, documented approximation. Zero draws is a guaranteed shit
// pack by policy.
//
// Nothing in the fulfillment path consumes the estimate. It exists for the
// pack-reveal surface, which shows the odds to the user mid-open as cards
// are flipped; that client lives outside this service and calls in with the
// pool for the pack's type.
func (a *Allocator) EstimateShitPackOdds(remainingCardCount int, pool *CardPool) float64 {
	if remainingCardCount == 0 {
		return 1
	}

	total := pool.TotalRemaining()
	if total <= 0 {
		return 0
	}

	bottom := 0
	for rarityID, n := range pool.RemainingByRarity {
		if a.rarities.IsBottomTier(rarityID) {
			bottom += n
		}
	}
	for rarityID, n := range pool.UnopenedByRarity {
		if a.rarities.IsBottomTier(rarityID) {
			bottom += n
		}
	}

	return math.Pow(float64(bottom)/float64(total), float64(remainingCardCount))
}

// SortRarestFirst orders instances rarest to most common: rank order first
// (legacy ahead of full-art ahead of numeric tiers), then card name, then
// card number.
func (a *Allocator) SortRarestFirst(instances []*models.CardInstance, designNames map[string]string) {
	sort.SliceStable(instances, func(i, j int) bool {
		ri, rj := instances[i].RarityID, instances[j].RarityID
		if ri != rj {
			if a.rarities.Outranks(ri, rj) {
				return true
			}
			if a.rarities.Outranks(rj, ri) {
				return false
			}
		}
		ni, nj := designNames[instances[i].DesignID], designNames[instances[j].DesignID]
		if ni != nj {
			return ni < nj
		}
		return instances[i].CardNumber < instances[j].CardNumber
	})
}
