package repositories

import (
	"context"
	"fmt"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/uptrace/bun"
)

type DeadLetterRepository interface {
	Create(ctx context.Context, record *models.DeadLetter) error
}

type deadLetterRepository struct {
	db *bun.DB
}

func NewDeadLetterRepository(db *bun.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) Create(ctx context.Context, record *models.DeadLetter) error {
	_, err := r.db.NewInsert().Model(record).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}
