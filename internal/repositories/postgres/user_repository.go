package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-presence/internal/models"
	"chat-presence/internal/repositories"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ? AND deleted_at IS NULL", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repositories.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", username, err)
	}
	return &user, nil
}

func (r *UserRepository) UpdateLastActive(ctx context.Context, username string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ? AND deleted_at IS NULL", username).
		Update("last_active", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update last active for %s: %w", username, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrUserNotFound
	}
	return nil
}

// Create is used by seeding and tests that run against a real database.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.Username = models.NormalizeUsername(user.Username)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Username, err)
	}
	return nil
}
