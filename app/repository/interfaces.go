package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CourseGate/app/models"
)

// CourseRepository defines read access to the course catalog
type CourseRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Course, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Course, error)
}

// ComboRepository defines read access to combo bundles. Bundles are returned
// with their member rows in bundle order.
type ComboRepository interface {
	GetByID(ctx context.Context, id uint) (*models.ComboBundle, error)
}

// PurchaseRepository defines the ledger storage operations. Settle must be a
// single conditional update so that only one settlement per purchase wins.
type PurchaseRepository interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	GetByID(ctx context.Context, id uint) (*models.Purchase, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Purchase, error)
	ListByPlanType(ctx context.Context, planType string) ([]models.Purchase, error)
	ListApprovedEndingBetween(ctx context.Context, from, to time.Time) ([]models.Purchase, error)
	Settle(ctx context.Context, id uint, update SettleUpdate) (bool, error)
}

// UserRepository defines the identity lookups used by the API key middleware
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
}

// PaymentEventRepository persists gateway notifications
type PaymentEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// SettleUpdate carries the fields written when a pending purchase is settled.
type SettleUpdate struct {
	PaymentStatus string
	StartDate     *time.Time
	EndDate       *time.Time
	SettledAt     time.Time
}

// Repositories struct holds all repository instances
type Repositories struct {
	Course       CourseRepository
	Combo        ComboRepository
	Purchase     PurchaseRepository
	User         UserRepository
	PaymentEvent PaymentEventRepository
}
