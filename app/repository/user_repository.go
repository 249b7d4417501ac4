package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseGate/app/models"
)

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

// GetByAPIKeyHash finds the user owning a non-revoked API key.
func (r *userRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("api_key_hash = ? AND api_key_revoked_at IS NULL", hash).
		First(&user).Error
	if err != nil {
		return nil, notFound(err, "user with api key", "***")
	}
	return &user, nil
}
