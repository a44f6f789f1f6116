package trading

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
	"github.com/uptrace/bun"
)

// SettlementTx is one settlement's transactional view of the store. The
// ForUpdate reads take row locks that hold until Commit or Rollback, so
// nothing verified here can change underneath the swap.
type SettlementTx interface {
	TradeForUpdate(ctx context.Context, tradeID string) (*models.Trade, error)
	Usernames(ctx context.Context, userIDs ...string) (map[string]string, error)
	CardsForUpdate(ctx context.Context, cardIDs []string) ([]*models.CardInstance, error)
	ReassignOwnership(ctx context.Context, cardIDs []string, newOwner string, at time.Time) (int64, error)
	AppendTransition(ctx context.Context, tradeID string, to models.TradeStatus, failureReason string, message models.TradeMessage) (int64, error)
	Commit() error
	Rollback() error
}

// SettlementStore opens serializable settlement transactions.
type SettlementStore interface {
	Begin(ctx context.Context) (SettlementTx, error)
}

type bunSettlementStore struct {
	db *bun.DB
}

func NewBunSettlementStore(db *bun.DB) SettlementStore {
	return &bunSettlementStore{db: db}
}

func (s *bunSettlementStore) Begin(ctx context.Context) (SettlementTx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to start settlement transaction: %w", err)
	}
	return &bunSettlementTx{tx: tx}, nil
}

type bunSettlementTx struct {
	tx bun.Tx
}

func (t *bunSettlementTx) TradeForUpdate(ctx context.Context, tradeID string) (*models.Trade, error) {
	trade := new(models.Trade)
	err := t.tx.NewSelect().
		Model(trade).
		Where("trade_id = ?", tradeID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &repositories.NotFoundError{Entity: "trade", ID: tradeID}
		}
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}
	return trade, nil
}

func (t *bunSettlementTx) Usernames(ctx context.Context, userIDs ...string) (map[string]string, error) {
	var users []*models.User
	err := t.tx.NewSelect().
		Model(&users).
		Where("user_id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade participants: %w", err)
	}

	usernames := make(map[string]string, len(users))
	for _, user := range users {
		usernames[user.UserID] = user.Username
	}
	return usernames, nil
}

func (t *bunSettlementTx) CardsForUpdate(ctx context.Context, cardIDs []string) ([]*models.CardInstance, error) {
	var instances []*models.CardInstance
	err := t.tx.NewSelect().
		Model(&instances).
		Where("instance_id IN (?)", bun.In(cardIDs)).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade cards: %w", err)
	}
	return instances, nil
}

func (t *bunSettlementTx) ReassignOwnership(ctx context.Context, cardIDs []string, newOwner string, at time.Time) (int64, error) {
	result, err := t.tx.NewUpdate().
		Model((*models.CardInstance)(nil)).
		Set("owner_user_id = ?", newOwner).
		Set("updated_at = ?", at).
		Where("instance_id IN (?)", bun.In(cardIDs)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign card ownership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// AppendTransition moves the trade out of accepted and appends the log
// entry in one guarded statement; zero rows means the trade changed status
// concurrently.
func (t *bunSettlementTx) AppendTransition(ctx context.Context, tradeID string, to models.TradeStatus, failureReason string, message models.TradeMessage) (int64, error) {
	encoded, err := json.Marshal([]models.TradeMessage{message})
	if err != nil {
		return 0, fmt.Errorf("failed to encode trade message: %w", err)
	}

	result, err := t.tx.NewUpdate().
		Model((*models.Trade)(nil)).
		Set("status = ?", to).
		Set("failure_reason = ?", failureReason).
		Set("messages = messages || ?::jsonb", string(encoded)).
		Set("updated_at = ?", message.At).
		Where("trade_id = ? AND status = ?", tradeID, models.TradeAccepted).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to update trade status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

func (t *bunSettlementTx) Commit() error {
	return t.tx.Commit()
}

func (t *bunSettlementTx) Rollback() error {
	return t.tx.Rollback()
}
