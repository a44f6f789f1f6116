package fulfillment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/packforge/packforge/database/models"
)

func seasonPackType(packTypeID, seasonID string, cardCount int) *models.PackType {
	return &models.PackType{
		PackTypeID: packTypeID,
		Name:       packTypeID,
		CardCount:  cardCount,
		Category:   models.PackCategorySeason,
		SeasonID:   &seasonID,
	}
}

func TestResolver_ResolvePool_Season(t *testing.T) {
	ctx := context.Background()
	designs := newFakeDesignRepo(
		testDesign("aria-01", "s1", "Aria",
			models.RarityDetail{RarityID: "bronze", Count: 5},
			models.RarityDetail{RarityID: "gold", Count: 1},
			models.RarityDetail{RarityID: models.RarityLegacy, Count: 1},
		),
		testDesign("marble-01", "s1", "Marble",
			models.RarityDetail{RarityID: "bronze", Count: 3},
		),
		testDesign("other-01", "s2", "Other",
			models.RarityDetail{RarityID: "bronze", Count: 9},
		),
	)
	instances := newFakeInstanceRepo()
	instances.taken[numberKey{"aria-01", "bronze", 1}] = true
	instances.taken[numberKey{"aria-01", "bronze", 2}] = true
	instances.unopenedByRarity = map[string]int{"bronze": 2}

	resolver := NewResolver(designs, instances, testRaritySet())

	pool, err := resolver.ResolvePool(ctx, seasonPackType("season-1", "s1", 3))
	require.NoError(t, err)

	assert.Len(t, pool.Designs, 2, "other seasons stay out of the pool")
	assert.Equal(t, 6, pool.RemainingByRarity["bronze"])
	assert.Equal(t, 1, pool.RemainingByRarity["gold"])
	assert.Equal(t, 3, pool.DesignRemaining["aria-01"]["bronze"])
	assert.Equal(t, 3, pool.DesignRemaining["marble-01"]["bronze"])

	// Synthetic tiers carry no counted supply.
	_, counted := pool.DesignRemaining["aria-01"][models.RarityLegacy]
	assert.False(t, counted)

	// Denominator includes reserved but unopened instances.
	assert.Equal(t, 9, pool.TotalRemaining())
}

func TestResolver_ResolvePool_NegativeRemaining(t *testing.T) {
	designs := newFakeDesignRepo(
		testDesign("aria-01", "s1", "Aria",
			models.RarityDetail{RarityID: "gold", Count: 1},
		),
	)
	instances := newFakeInstanceRepo()
	instances.taken[numberKey{"aria-01", "gold", 1}] = true
	instances.taken[numberKey{"aria-01", "gold", 2}] = true

	resolver := NewResolver(designs, instances, testRaritySet())

	_, err := resolver.ResolvePool(context.Background(), seasonPackType("season-1", "s1", 1))

	var integrityErr *NegativeRemainingError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, "aria-01", integrityErr.DesignID)
	assert.Equal(t, "gold", integrityErr.RarityID)
}

func TestResolver_ResolvePool_EmptyPool(t *testing.T) {
	resolver := NewResolver(newFakeDesignRepo(), newFakeInstanceRepo(), testRaritySet())

	_, err := resolver.ResolvePool(context.Background(), seasonPackType("season-9", "s9", 1))
	assert.Error(t, err)
}

func TestResolver_ResolvePool_CustomCachesDesignList(t *testing.T) {
	ctx := context.Background()
	designs := newFakeDesignRepo(
		testDesign("aria-01", "s1", "Aria",
			models.RarityDetail{RarityID: "bronze", Count: 5},
		),
	)
	resolver := NewResolver(designs, newFakeInstanceRepo(), testRaritySet())

	packType := &models.PackType{
		PackTypeID: "custom-1",
		Name:       "Custom",
		CardCount:  1,
		Category:   models.PackCategoryCustom,
		DesignIDs:  []string{"aria-01"},
	}

	_, err := resolver.ResolvePool(ctx, packType)
	require.NoError(t, err)
	_, err = resolver.ResolvePool(ctx, packType)
	require.NoError(t, err)

	assert.Equal(t, 1, designs.getByIDsCalls, "design list is cached, counts are not")
}

func TestResolver_ResolvePool_UnknownCategory(t *testing.T) {
	resolver := NewResolver(newFakeDesignRepo(), newFakeInstanceRepo(), testRaritySet())

	_, err := resolver.ResolvePool(context.Background(), &models.PackType{
		PackTypeID: "odd",
		Category:   models.PackCategory("mystery"),
	})
	assert.Error(t, err)
}
