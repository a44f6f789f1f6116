package bus

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage marks payloads rejected at the consumption boundary,
// before any business logic runs.
var ErrMalformedMessage = errors.New("malformed message payload")

// GrantPackMessage instructs the fulfillment worker to grant packs to a
// user. EventID is the idempotency token for the whole grant.
type GrantPackMessage struct {
	EventID    string `json:"event_id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	PackCount  int    `json:"pack_count"`
	PackTypeID string `json:"pack_type"`
}

func (m *GrantPackMessage) Validate() error {
	switch {
	case m.EventID == "":
		return fmt.Errorf("%w: missing event_id", ErrMalformedMessage)
	case m.UserID == "":
		return fmt.Errorf("%w: missing user_id", ErrMalformedMessage)
	case m.PackCount <= 0:
		return fmt.Errorf("%w: pack_count must be positive, got %d", ErrMalformedMessage, m.PackCount)
	case m.PackTypeID == "":
		return fmt.Errorf("%w: missing pack_type", ErrMalformedMessage)
	}
	return nil
}

func DecodeGrantPack(body string) (*GrantPackMessage, error) {
	var msg GrantPackMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// TradeAcceptedMessage asks the settlement worker to settle one trade.
type TradeAcceptedMessage struct {
	TradeID string `json:"trade_id"`
}

func (m *TradeAcceptedMessage) Validate() error {
	if m.TradeID == "" {
		return fmt.Errorf("%w: missing trade_id", ErrMalformedMessage)
	}
	return nil
}

func DecodeTradeAccepted(body string) (*TradeAcceptedMessage, error) {
	var msg TradeAcceptedMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
