package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/packforge/packforge/packforge/bus"
	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

// settlementActor attributes settlement transitions in the trade log.
const settlementActor = "settlement-worker"

// SettlementWorker consumes trade-accepted messages and performs the
// ownership swap. Everything happens inside one serializable transaction:
// the ownership re-check and the swap either both land or neither does.
type SettlementWorker struct {
	store SettlementStore
	now   func() time.Time
}

func NewSettlementWorker(store SettlementStore) *SettlementWorker {
	return &SettlementWorker{store: store, now: time.Now}
}

// WithClock replaces the worker's time source.
func (w *SettlementWorker) WithClock(now func() time.Time) *SettlementWorker {
	w.now = now
	return w
}

// Handle implements bus.HandlerFunc for the trade-accepted queue.
func (w *SettlementWorker) Handle(ctx context.Context, msg types.Message) (bus.Result, error) {
	accepted, err := bus.DecodeTradeAccepted(derefOrEmpty(msg.Body))
	if err != nil {
		return bus.Retry, err
	}

	err = w.Settle(ctx, accepted.TradeID)
	switch {
	case err == nil:
		return bus.Ack, nil
	case errors.Is(err, ErrNotSettleable):
		// Duplicate delivery after settlement already ran.
		slog.Info("Skipping trade not awaiting settlement",
			slog.String("type", "trade"),
			slog.String("trade_id", accepted.TradeID))
		return bus.Ack, nil
	default:
		var ownErr *UserDoesNotOwnCardError
		if errors.As(err, &ownErr) {
			// Terminal business outcome, recorded on the trade itself.
			return bus.Ack, err
		}
		return bus.Retry, err
	}
}

// Settle re-verifies ownership of every card in the trade and either swaps
// ownership atomically or fails the trade with a diagnostic message.
func (w *SettlementWorker) Settle(ctx context.Context, tradeID string) error {
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	trade, err := tx.TradeForUpdate(ctx, tradeID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return fmt.Errorf("trade %s not found: %w", tradeID, ErrNotSettleable)
		}
		return err
	}

	if trade.Status != models.TradeAccepted {
		return fmt.Errorf("trade %s is %s: %w", tradeID, trade.Status, ErrNotSettleable)
	}

	usernames, err := tx.Usernames(ctx, trade.SenderUserID, trade.ReceiverUserID)
	if err != nil {
		return err
	}
	for _, id := range []string{trade.SenderUserID, trade.ReceiverUserID} {
		if _, ok := usernames[id]; !ok {
			usernames[id] = id
		}
	}

	// Time has passed since the trade was proposed; either side's holdings
	// may have changed. Re-check everything before touching ownership.
	ownErr, err := w.verifySide(ctx, tx, trade, trade.OfferedCardIDs, trade.SenderUserID, usernames)
	if err != nil {
		return err
	}
	if ownErr == nil {
		ownErr, err = w.verifySide(ctx, tx, trade, trade.RequestedCardIDs, trade.ReceiverUserID, usernames)
		if err != nil {
			return err
		}
	}
	if ownErr != nil {
		return w.failTrade(ctx, tx, trade, ownErr)
	}

	if err := w.swapOwnership(ctx, tx, trade.OfferedCardIDs, trade.ReceiverUserID); err != nil {
		return err
	}
	if err := w.swapOwnership(ctx, tx, trade.RequestedCardIDs, trade.SenderUserID); err != nil {
		return err
	}

	if err := w.appendTransition(ctx, tx, trade.TradeID, models.TradeCompleted, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}

	slog.Info("Trade settled",
		slog.String("type", "trade"),
		slog.String("trade_id", trade.TradeID),
		slog.String("sender_user_id", trade.SenderUserID),
		slog.String("receiver_user_id", trade.ReceiverUserID),
		slog.Int("cards", len(trade.OfferedCardIDs)+len(trade.RequestedCardIDs)))

	return nil
}

// verifySide checks that every card on one side of the trade is still
// owned by the expected party. Rows are locked so the answer cannot change
// before the swap commits.
func (w *SettlementWorker) verifySide(ctx context.Context, tx SettlementTx, trade *models.Trade, cardIDs []string, expectedOwner string, usernames map[string]string) (*UserDoesNotOwnCardError, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}

	instances, err := tx.CardsForUpdate(ctx, cardIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.CardInstance, len(instances))
	for _, instance := range instances {
		byID[instance.InstanceID] = instance
	}

	return findOwnershipMismatch(trade.TradeID, cardIDs, byID, expectedOwner, usernames[expectedOwner]), nil
}

// findOwnershipMismatch reports the first card not currently owned by the
// expected party. A card that vanished entirely counts as a mismatch too.
func findOwnershipMismatch(tradeID string, cardIDs []string, byID map[string]*models.CardInstance, expectedOwner, username string) *UserDoesNotOwnCardError {
	for _, cardID := range cardIDs {
		instance, ok := byID[cardID]
		if !ok || instance.OwnerUserID == nil || *instance.OwnerUserID != expectedOwner {
			return &UserDoesNotOwnCardError{
				Username: username,
				CardID:   cardID,
				TradeID:  tradeID,
			}
		}
	}
	return nil
}

// failTrade records the ownership failure as business state on the trade
// and commits. No ownership was mutated. The returned error is the typed
// failure for the caller to classify as terminal.
func (w *SettlementWorker) failTrade(ctx context.Context, tx SettlementTx, trade *models.Trade, ownErr *UserDoesNotOwnCardError) error {
	if err := w.appendTransition(ctx, tx, trade.TradeID, models.TradeFailed, ownErr.Error()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade failure: %w", err)
	}

	slog.Warn("Trade failed ownership re-check",
		slog.String("type", "trade"),
		slog.String("trade_id", trade.TradeID),
		slog.String("card_id", ownErr.CardID),
		slog.String("username", ownErr.Username))

	return ownErr
}

func (w *SettlementWorker) swapOwnership(ctx context.Context, tx SettlementTx, cardIDs []string, newOwner string) error {
	if len(cardIDs) == 0 {
		return nil
	}

	affected, err := tx.ReassignOwnership(ctx, cardIDs, newOwner, w.now())
	if err != nil {
		return err
	}
	if affected != int64(len(cardIDs)) {
		return fmt.Errorf("ownership swap touched %d of %d cards", affected, len(cardIDs))
	}
	return nil
}

func (w *SettlementWorker) appendTransition(ctx context.Context, tx SettlementTx, tradeID string, to models.TradeStatus, failureReason string) error {
	affected, err := tx.AppendTransition(ctx, tradeID, to, failureReason, models.TradeMessage{
		Kind:        models.TradeMessageStatusUpdate,
		Value:       string(to),
		ActorUserID: settlementActor,
		At:          w.now(),
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("trade %s changed status mid-settlement: %w", tradeID, ErrNotSettleable)
	}
	return nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
