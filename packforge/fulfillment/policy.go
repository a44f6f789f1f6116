package fulfillment

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// CardSelection names one card to mint: which design, at which rarity.
type CardSelection struct {
	DesignID string
	RarityID string
}

// RarityPolicy decides which cards a pack draws from a resolved pool.
type RarityPolicy interface {
	SelectCards(pool *CardPool, count int) ([]CardSelection, error)
}

// ProportionalPolicy draws each card with probability proportional to the
// remaining unallocated supply, without replacement within the selection.
type ProportionalPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewProportionalPolicy() *ProportionalPolicy {
	return &ProportionalPolicy{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeededProportionalPolicy fixes the random source, for tests.
func NewSeededProportionalPolicy(seed int64) *ProportionalPolicy {
	return &ProportionalPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (p *ProportionalPolicy) SelectCards(pool *CardPool, count int) ([]CardSelection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Work on a copy so a failed fulfillment never poisons the pool view.
	remaining := make(map[string]map[string]int, len(pool.DesignRemaining))
	designIDs := make([]string, 0, len(pool.DesignRemaining))
	for designID, perRarity := range pool.DesignRemaining {
		designIDs = append(designIDs, designID)
		cells := make(map[string]int, len(perRarity))
		for rarityID, n := range perRarity {
			cells[rarityID] = n
		}
		remaining[designID] = cells
	}
	sort.Strings(designIDs)

	selections := make([]CardSelection, 0, count)
	for i := 0; i < count; i++ {
		total := 0
		for _, perRarity := range remaining {
			for _, n := range perRarity {
				total += n
			}
		}
		if total == 0 {
			return nil, fmt.Errorf("pool for pack type %s ran dry after %d of %d selections: %w",
				pool.PackTypeID, i, count, ErrCapacityExhausted)
		}

		pick := p.rng.Intn(total)
		selection, ok := pickCell(designIDs, remaining, pick)
		if !ok {
			return nil, fmt.Errorf("selection index %d out of range for pool %s", pick, pool.PackTypeID)
		}
		remaining[selection.DesignID][selection.RarityID]--
		selections = append(selections, selection)
	}
	return selections, nil
}

// pickCell walks the cells in deterministic order until the weighted index
// lands inside one.
func pickCell(designIDs []string, remaining map[string]map[string]int, pick int) (CardSelection, bool) {
	for _, designID := range designIDs {
		perRarity := remaining[designID]
		rarityIDs := make([]string, 0, len(perRarity))
		for rarityID := range perRarity {
			rarityIDs = append(rarityIDs, rarityID)
		}
		sort.Strings(rarityIDs)

		for _, rarityID := range rarityIDs {
			n := perRarity[rarityID]
			if pick < n {
				return CardSelection{DesignID: designID, RarityID: rarityID}, true
			}
			pick -= n
		}
	}
	return CardSelection{}, false
}
