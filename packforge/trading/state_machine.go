package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

// AcceptedPublisher emits the settlement trigger after a trade is accepted.
type AcceptedPublisher interface {
	PublishTradeAccepted(ctx context.Context, tradeID string) error
}

// StateMachine owns every synchronous trade transition. Settlement itself
// is asynchronous; accepting only moves the trade to accepted and enqueues
// the settlement message.
type StateMachine struct {
	trades    repositories.TradeRepository
	publisher AcceptedPublisher
	now       func() time.Time
}

func NewStateMachine(trades repositories.TradeRepository, publisher AcceptedPublisher) *StateMachine {
	return &StateMachine{
		trades:    trades,
		publisher: publisher,
		now:       time.Now,
	}
}

// WithClock replaces the state machine's time source.
func (sm *StateMachine) WithClock(now func() time.Time) *StateMachine {
	sm.now = now
	return sm
}

// Accept moves a pending trade to accepted. Only the receiver may accept.
func (sm *StateMachine) Accept(ctx context.Context, tradeID, actingUserID string) error {
	trade, err := sm.trades.GetByTradeID(ctx, tradeID)
	if err != nil {
		return err
	}
	if err := authorize(trade, actingUserID, trade.ReceiverUserID); err != nil {
		return err
	}

	if err := sm.transition(ctx, tradeID, models.TradeAccepted, actingUserID); err != nil {
		return err
	}

	if err := sm.publisher.PublishTradeAccepted(ctx, tradeID); err != nil {
		// The status is already durable; without the message the trade
		// stays accepted and unsettled, so surface the error to the caller
		// for a retry of the publish.
		return fmt.Errorf("trade %s accepted but settlement message not enqueued: %w", tradeID, err)
	}

	slog.Info("Trade accepted",
		slog.String("type", "trade"),
		slog.String("trade_id", tradeID),
		slog.String("receiver_user_id", actingUserID))
	return nil
}

// Reject terminally declines a pending trade. Only the receiver may reject.
func (sm *StateMachine) Reject(ctx context.Context, tradeID, actingUserID string) error {
	trade, err := sm.trades.GetByTradeID(ctx, tradeID)
	if err != nil {
		return err
	}
	if err := authorize(trade, actingUserID, trade.ReceiverUserID); err != nil {
		return err
	}
	return sm.transition(ctx, tradeID, models.TradeRejected, actingUserID)
}

// Cancel terminally withdraws a pending trade. Only the sender may cancel.
func (sm *StateMachine) Cancel(ctx context.Context, tradeID, actingUserID string) error {
	trade, err := sm.trades.GetByTradeID(ctx, tradeID)
	if err != nil {
		return err
	}
	if err := authorize(trade, actingUserID, trade.SenderUserID); err != nil {
		return err
	}
	return sm.transition(ctx, tradeID, models.TradeCanceled, actingUserID)
}

// authorize checks the actor before the state so an unauthorized caller
// learns nothing about the trade's progress, and never has a side effect.
func authorize(trade *models.Trade, actingUserID, allowedUserID string) error {
	if actingUserID != allowedUserID {
		return fmt.Errorf("user %s on trade %s: %w", actingUserID, trade.TradeID, ErrUnauthorized)
	}
	if trade.Status != models.TradePending {
		return fmt.Errorf("trade %s is %s: %w", trade.TradeID, trade.Status, ErrInvalidTransition)
	}
	return nil
}

func (sm *StateMachine) transition(ctx context.Context, tradeID string, to models.TradeStatus, actingUserID string) error {
	applied, err := sm.trades.TransitionStatus(ctx, tradeID, models.TradePending, to, models.TradeMessage{
		Kind:        models.TradeMessageStatusUpdate,
		Value:       string(to),
		ActorUserID: actingUserID,
		At:          sm.now(),
	})
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent transition won; the pending precondition no longer
		// holds.
		return fmt.Errorf("trade %s left pending concurrently: %w", tradeID, ErrInvalidTransition)
	}
	return nil
}
