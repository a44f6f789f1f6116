package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	FulfillmentOutcomeCompleted = "completed"
)

// FulfillmentEvent is the idempotency record for one grant-pack message.
// A redelivered message whose event id is already present is skipped
// instead of reprocessed.
type FulfillmentEvent struct {
	bun.BaseModel `bun:"table:fulfillment_events,alias:fe"`

	EventID     string    `bun:"event_id,pk"`
	Outcome     string    `bun:"outcome,notnull"`
	PackIDs     []string  `bun:"pack_ids,type:jsonb,notnull"`
	ProcessedAt time.Time `bun:"processed_at,notnull"`
}
