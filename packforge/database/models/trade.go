package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeAccepted  TradeStatus = "accepted"
	TradeRejected  TradeStatus = "rejected"
	TradeCanceled  TradeStatus = "canceled"
	TradeCompleted TradeStatus = "completed"
	TradeFailed    TradeStatus = "failed"
)

// IsTerminal reports whether no further transition may leave this status.
// Accepted trades still move to completed or failed at settlement.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case TradeRejected, TradeCanceled, TradeCompleted, TradeFailed:
		return true
	}
	return false
}

const TradeMessageStatusUpdate = "status-update"

// TradeMessage is one entry of the append-only trade log. The log is the
// audit trail of the trade and is never rewritten.
type TradeMessage struct {
	Kind        string    `json:"kind"`
	Value       string    `json:"value"`
	ActorUserID string    `json:"actor_user_id"`
	At          time.Time `json:"at"`
}

type Trade struct {
	bun.BaseModel `bun:"table:trades,alias:t"`

	TradeID        string `bun:"trade_id,pk"`
	SenderUserID   string `bun:"sender_user_id,notnull"`
	ReceiverUserID string `bun:"receiver_user_id,notnull"`

	// Card references are frozen at proposal time; settlement re-validates
	// ownership against the live store.
	OfferedCardIDs   []string `bun:"offered_card_ids,type:jsonb,notnull"`
	RequestedCardIDs []string `bun:"requested_card_ids,type:jsonb,notnull"`

	Status        TradeStatus    `bun:"status,notnull"`
	Messages      []TradeMessage `bun:"messages,type:jsonb,notnull"`
	FailureReason string         `bun:"failure_reason,type:text,default:''"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
