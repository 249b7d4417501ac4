package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseGate/app/models"
)

type purchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *purchaseRepository) GetByID(ctx context.Context, id uint) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).First(&purchase, id).Error; err != nil {
		return nil, notFound(err, "purchase", id)
	}
	return &purchase, nil
}

func (r *purchaseRepository) ListByUser(ctx context.Context, userID uint) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&purchases).Error
	return purchases, err
}

func (r *purchaseRepository) ListByPlanType(ctx context.Context, planType string) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("plan_type = ?", planType).
		Order("created_at DESC, id DESC").
		Find(&purchases).Error
	return purchases, err
}

// ListApprovedEndingBetween uses the cached end_date only as a pre-filter;
// callers recompute the window before acting on a row.
func (r *purchaseRepository) ListApprovedEndingBetween(ctx context.Context, from, to time.Time) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND end_date >= ? AND end_date < ?", models.PaymentStatusApproved, from, to).
		Order("end_date ASC").
		Find(&purchases).Error
	return purchases, err
}

// Settle applies the settlement only while the row is still pending. It
// reports false when another settlement got there first.
func (r *purchaseRepository) Settle(ctx context.Context, id uint, update SettleUpdate) (bool, error) {
	updates := map[string]interface{}{
		"payment_status": update.PaymentStatus,
		"start_date":     update.StartDate,
		"end_date":       update.EndDate,
		"settled_at":     update.SettledAt,
	}
	tx := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND payment_status = ?", id, models.PaymentStatusPending).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
