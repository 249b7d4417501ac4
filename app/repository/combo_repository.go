package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseGate/app/models"
)

type comboRepository struct {
	db *gorm.DB
}

// NewComboRepository creates a new combo bundle repository
func NewComboRepository(db *gorm.DB) ComboRepository {
	return &comboRepository{db: db}
}

func (r *comboRepository) GetByID(ctx context.Context, id uint) (*models.ComboBundle, error) {
	var bundle models.ComboBundle
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&bundle, id).Error
	if err != nil {
		return nil, notFound(err, "combo bundle", id)
	}
	return &bundle, nil
}
