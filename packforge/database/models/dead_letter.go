package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DeadLetter is the durable failure record written for every message that
// exhausted its retry budget. Written only by the alert handler.
type DeadLetter struct {
	bun.BaseModel `bun:"table:dead_letters,alias:dl"`

	ID            int64     `bun:"id,pk,autoincrement"`
	Queue         string    `bun:"queue,notnull"`
	MessageID     string    `bun:"message_id,notnull"`
	Body          string    `bun:"body,type:text,notnull"`
	FailureReason string    `bun:"failure_reason,type:text,notnull"`
	ReceiveCount  int       `bun:"receive_count,notnull,default:0"`
	ArchiveKey    string    `bun:"archive_key,type:text,default:''"`
	ReceivedAt    time.Time `bun:"received_at,notnull"`
}
