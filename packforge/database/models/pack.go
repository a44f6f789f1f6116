package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Pack struct {
	bun.BaseModel `bun:"table:packs,alias:p"`

	PackID string `bun:"pack_id,pk"`

	// UserID is nil for unassigned packs.
	UserID     *string `bun:"user_id"`
	PackTypeID string  `bun:"pack_type_id,notnull"`

	// CardIDs is the ordered list of reserved instances. Card numbers are
	// consumed here, at pack creation; opening a pack only reveals.
	CardIDs  []string `bun:"card_ids,type:jsonb,notnull"`
	IsLocked bool     `bun:"is_locked,notnull,default:false"`

	// EventID ties the pack back to the fulfillment event that created it.
	EventID string `bun:"event_id,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
