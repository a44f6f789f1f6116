package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type CardInstance struct {
	bun.BaseModel `bun:"table:card_instances,alias:ci"`

	InstanceID  string `bun:"instance_id,pk"`
	DesignID    string `bun:"design_id,notnull"`
	RarityID    string `bun:"rarity_id,notnull"`
	CardNumber  int    `bun:"card_number,notnull"`
	TotalOfType int    `bun:"total_of_type,notnull"`

	// OwnerUserID is nil while the card sits in an unopened pack.
	OwnerUserID  *string    `bun:"owner_user_id"`
	MinterUserID string     `bun:"minter_user_id,notnull"`
	PackID       string     `bun:"pack_id,notnull"`
	OpenedAt     *time.Time `bun:"opened_at"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// NewInstanceID derives the instance identifier from the coordinates that
// make an instance unique. Same inputs always yield the same id, which is
// what makes re-derivation on redelivery safe.
func NewInstanceID(seasonID, designID, rarityID string, cardNumber int) string {
	return fmt.Sprintf("%s-%s-%s-%d", seasonID, designID, rarityID, cardNumber)
}

func (c *CardInstance) IsOpened() bool {
	return c.OpenedAt != nil
}
