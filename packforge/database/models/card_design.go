package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RarityDetail fixes the supply of one rarity for a design. The count is set
// at design-creation time and never mutated afterwards.
type RarityDetail struct {
	RarityID string `json:"rarity_id"`
	Count    int    `json:"count"`
}

type CardDesign struct {
	bun.BaseModel `bun:"table:card_designs,alias:cd"`

	DesignID      string         `bun:"design_id,pk"`
	SeasonID      string         `bun:"season_id,notnull"`
	Name          string         `bun:"name,notnull"`
	RarityDetails []RarityDetail `bun:"rarity_details,type:jsonb,notnull"`

	// BestRarityFound caches the rarest rarity an opened instance of this
	// design has ever had. It only moves toward rarer, via compare-and-set.
	BestRarityFound *string `bun:"best_rarity_found"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// CountFor returns the declared supply for a rarity, or false when the
// design does not carry that rarity at all.
func (d *CardDesign) CountFor(rarityID string) (int, bool) {
	for _, detail := range d.RarityDetails {
		if detail.RarityID == rarityID {
			return detail.Count, true
		}
	}
	return 0, false
}
