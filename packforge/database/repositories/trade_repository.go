package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/uptrace/bun"
)

type TradeRepository interface {
	Create(ctx context.Context, trade *models.Trade) error
	GetByTradeID(ctx context.Context, tradeID string) (*models.Trade, error)
	TransitionStatus(ctx context.Context, tradeID string, from, to models.TradeStatus, message models.TradeMessage) (bool, error)
}

type tradeRepository struct {
	db *bun.DB
}

func NewTradeRepository(db *bun.DB) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	trade.CreatedAt = time.Now()
	trade.UpdatedAt = time.Now()
	trade.Status = models.TradePending
	if trade.Messages == nil {
		trade.Messages = []models.TradeMessage{}
	}

	_, err := r.db.NewInsert().Model(trade).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (r *tradeRepository) GetByTradeID(ctx context.Context, tradeID string) (*models.Trade, error) {
	trade := new(models.Trade)
	err := r.db.NewSelect().
		Model(trade).
		Where("trade_id = ?", tradeID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "trade", ID: tradeID}
		}
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// TransitionStatus moves the trade from one status to another and appends
// the transition to the message log in the same statement. The update is
// conditional on the current status, so two racing transitions cannot both
// succeed; the loser sees false.
func (r *tradeRepository) TransitionStatus(ctx context.Context, tradeID string, from, to models.TradeStatus, message models.TradeMessage) (bool, error) {
	encoded, err := json.Marshal([]models.TradeMessage{message})
	if err != nil {
		return false, fmt.Errorf("failed to encode trade message: %w", err)
	}

	result, err := r.db.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", to).
		Set("messages = messages || ?::jsonb", string(encoded)).
		Set("updated_at = ?", message.At).
		Where("trade_id = ? AND status = ?", tradeID, from).
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to transition trade status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}
