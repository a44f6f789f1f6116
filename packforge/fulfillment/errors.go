package fulfillment

import (
	"errors"
	"fmt"
)

// ErrCapacityExhausted means every card number for a (design, rarity) pair
// is taken, or a pool has no cards left to draw. Hard stop, never wraps
// around or reuses numbers.
var ErrCapacityExhausted = errors.New("capacity exhausted")

// NegativeRemainingError is a data-integrity failure: more instances exist
// than the design's declared supply. It aborts the operation instead of
// being clamped to zero.
type NegativeRemainingError struct {
	DesignID  string
	RarityID  string
	Remaining int
}

func (e *NegativeRemainingError) Error() string {
	return fmt.Sprintf("negative remaining count %d for design %s rarity %s",
		e.Remaining, e.DesignID, e.RarityID)
}
