package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/uptrace/bun"
)

type UserRepository interface {
	CreateIfAbsent(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

type userRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) UserRepository {
	return &userRepository{db: db}
}

// CreateIfAbsent inserts the user only when the id is unseen. An existing
// record is never overwritten, which keeps the ensure-user step idempotent
// under message redelivery.
func (r *userRepository) CreateIfAbsent(ctx context.Context, user *models.User) error {
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	result, err := r.db.NewInsert().
		Model(user).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		slog.Info("Created user record",
			slog.String("type", "db"),
			slog.String("user_id", user.UserID),
			slog.String("username", user.Username))
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("user_id = ?", userID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "user", ID: userID}
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
