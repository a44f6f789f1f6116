package trading

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition means the trade is not in a state from which the
// requested transition is allowed.
var ErrInvalidTransition = errors.New("invalid trade transition")

// ErrUnauthorized means the acting user is not the party allowed to perform
// this transition.
var ErrUnauthorized = errors.New("user is not authorized for this trade action")

// ErrNotSettleable means the trade is no longer awaiting settlement,
// typically because a duplicate delivery arrived after settlement ran.
var ErrNotSettleable = errors.New("trade is not awaiting settlement")

// UserDoesNotOwnCardError is the terminal settlement failure: a card in the
// trade changed hands between acceptance and settlement.
type UserDoesNotOwnCardError struct {
	Username string
	CardID   string
	TradeID  string
}

func (e *UserDoesNotOwnCardError) Error() string {
	return fmt.Sprintf("%s no longer owns card %s in trade %s", e.Username, e.CardID, e.TradeID)
}
