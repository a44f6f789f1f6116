package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PackCategory string

const (
	PackCategorySeason PackCategory = "season"
	PackCategoryCustom PackCategory = "custom"
)

// PackType is immutable after creation. It defines how many cards a pack
// contains and which card pool those cards are drawn from.
type PackType struct {
	bun.BaseModel `bun:"table:pack_types,alias:pt"`

	PackTypeID string       `bun:"pack_type_id,pk"`
	Name       string       `bun:"name,notnull"`
	CardCount  int          `bun:"card_count,notnull"`
	Category   PackCategory `bun:"category,notnull"`

	// SeasonID is set for season pack types, DesignIDs for custom ones.
	SeasonID  *string  `bun:"season_id"`
	DesignIDs []string `bun:"design_ids,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
