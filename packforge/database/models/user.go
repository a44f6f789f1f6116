package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	UserID        string    `bun:"user_id,pk"`
	Username      string    `bun:"username,notnull"`
	UnopenedPacks int64     `bun:"unopened_packs,notnull,default:0"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}
