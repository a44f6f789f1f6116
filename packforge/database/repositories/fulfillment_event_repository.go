package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/uptrace/bun"
)

// ErrEventAlreadyProcessed means the idempotency token was recorded by an
// earlier delivery of the same message.
var ErrEventAlreadyProcessed = errors.New("fulfillment event already processed")

type FulfillmentEventRepository interface {
	GetByEventID(ctx context.Context, eventID string) (*models.FulfillmentEvent, error)
	Record(ctx context.Context, event *models.FulfillmentEvent, userID string, packDelta int64) error
}

type fulfillmentEventRepository struct {
	db *bun.DB
}

func NewFulfillmentEventRepository(db *bun.DB) FulfillmentEventRepository {
	return &fulfillmentEventRepository{db: db}
}

func (r *fulfillmentEventRepository) GetByEventID(ctx context.Context, eventID string) (*models.FulfillmentEvent, error) {
	event := new(models.FulfillmentEvent)
	err := r.db.NewSelect().
		Model(event).
		Where("event_id = ?", eventID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "fulfillment event", ID: eventID}
		}
		return nil, fmt.Errorf("failed to get fulfillment event: %w", err)
	}
	return event, nil
}

// Record writes the idempotency token and bumps the user's unopened-pack
// counter in one transaction, so a crash can never leave the counter moved
// without the token or the other way around.
func (r *fulfillmentEventRepository) Record(ctx context.Context, event *models.FulfillmentEvent, userID string, packDelta int64) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewInsert().
			Model(event).
			On("CONFLICT (event_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to record fulfillment event: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return ErrEventAlreadyProcessed
		}

		update, err := tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("unopened_packs = unopened_packs + ?", packDelta).
			Set("updated_at = ?", time.Now()).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update unopened pack counter: %w", err)
		}

		updated, err := update.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if updated == 0 {
			return &NotFoundError{Entity: "user", ID: userID}
		}
		return nil
	})
}
