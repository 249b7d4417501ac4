package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository"
	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
	"github.com/ManuelReschke/CourseGate/internal/pkg/catalog"
	"github.com/ManuelReschke/CourseGate/internal/pkg/clock"
	"github.com/ManuelReschke/CourseGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseGate/internal/pkg/events"
)

// Settlement outcomes accepted by SettlePurchase.
const (
	OutcomeApproved = models.PaymentStatusApproved
	OutcomeRejected = models.PaymentStatusRejected
)

// Target is what a purchase grants access to. Which fields may be set
// depends on the plan type.
type Target struct {
	CourseID      *uint `json:"course_id,omitempty"`
	ComboBundleID *uint `json:"combo_bundle_id,omitempty"`
}

// SettledEvent is the payload published after a settlement.
type SettledEvent struct {
	PurchaseID    uint       `json:"purchase_id"`
	UserID        uint       `json:"user_id"`
	PlanType      string     `json:"plan_type"`
	PaymentStatus string     `json:"payment_status"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
}

type recordInput struct {
	UserID uint  `validate:"required"`
	Price  int64 `validate:"gt=0"`
}

var validate = validator.New()

// Service owns the purchase lifecycle.
type Service struct {
	purchases repository.PurchaseRepository
	courses   repository.CourseRepository
	combos    repository.ComboRepository
	pricer    catalog.Pricer
	publisher events.Publisher
	clock     clock.Clock
}

// NewService creates a ledger service from injected repositories.
func NewService(repos *repository.Repositories, publisher events.Publisher, clk clock.Clock) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		purchases: repos.Purchase,
		courses:   repos.Course,
		combos:    repos.Combo,
		pricer:    catalog.NewResolver(repos.Combo, repos.Course),
		publisher: publisher,
		clock:     clk,
	}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, publisher events.Publisher) *Service {
	return NewService(repository.NewRepositories(db), publisher, clock.System())
}

// RecordPurchase creates a pending purchase after checking that the target
// fits the plan type and exists, and that price covers the target's current
// catalog price. Quarterly plans have no catalog price.
func (s *Service) RecordPurchase(ctx context.Context, userID uint, planType string, target Target, price int64) (*models.Purchase, error) {
	if err := validate.Struct(recordInput{UserID: userID, Price: price}); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidEntitlementState, err)
	}
	if err := checkTarget(planType, target); err != nil {
		return nil, err
	}

	listPrice, err := s.catalogPrice(ctx, target)
	if err != nil {
		return nil, err
	}
	if price < listPrice {
		return nil, fmt.Errorf("%w: offered %d, catalog price is %d", apperr.ErrPriceBelowCatalog, price, listPrice)
	}

	purchase := &models.Purchase{
		UserID:        userID,
		PlanType:      planType,
		CourseID:      target.CourseID,
		ComboBundleID: target.ComboBundleID,
		Price:         price,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		return nil, err
	}
	log.Infof("[Ledger] Recorded %s purchase %d for user %d", planType, purchase.ID, userID)
	return purchase, nil
}

// catalogPrice returns the uncached list price of a course or bundle target.
func (s *Service) catalogPrice(ctx context.Context, target Target) (int64, error) {
	switch {
	case target.CourseID != nil:
		course, err := s.courses.GetByID(ctx, *target.CourseID)
		if err != nil {
			return 0, err
		}
		return course.Price, nil
	case target.ComboBundleID != nil:
		pricing, err := s.pricer.ResolveCombo(ctx, *target.ComboBundleID)
		if err != nil {
			return 0, err
		}
		return pricing.EffectivePrice, nil
	default:
		return 0, nil
	}
}

func checkTarget(planType string, t Target) error {
	hasCourse := t.CourseID != nil
	hasBundle := t.ComboBundleID != nil

	var ok bool
	switch planType {
	case models.PlanSingle:
		ok = hasCourse && !hasBundle
	case models.PlanCombo:
		ok = hasBundle && !hasCourse
	case models.PlanQuarterly:
		ok = !hasCourse && !hasBundle
	case models.PlanKit, models.PlanSchool:
		ok = hasCourse != hasBundle
	default:
		return fmt.Errorf("%w: unknown plan type %q", apperr.ErrInvalidPlan, planType)
	}
	if !ok {
		return fmt.Errorf("%w: target does not fit plan type %q", apperr.ErrInvalidPlan, planType)
	}
	return nil
}

// SettlePurchase moves a pending purchase to approved or rejected. Exactly
// one concurrent settlement of the same purchase succeeds; the others get
// ErrAlreadySettled.
func (s *Service) SettlePurchase(ctx context.Context, purchaseID uint, outcome string) (*models.Purchase, error) {
	if outcome != OutcomeApproved && outcome != OutcomeRejected {
		return nil, fmt.Errorf("%w: unknown settlement outcome %q", apperr.ErrInvalidPlan, outcome)
	}

	purchase, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if !purchase.IsPending() {
		return nil, fmt.Errorf("purchase %d is %s: %w", purchase.ID, purchase.PaymentStatus, apperr.ErrAlreadySettled)
	}

	now := s.clock.Now()
	update := repository.SettleUpdate{PaymentStatus: outcome, SettledAt: now}
	if outcome == OutcomeApproved {
		bundle, err := s.bundleFor(ctx, purchase)
		if err != nil {
			return nil, err
		}
		end, err := entitlements.AccessEndDate(purchase.PlanType, now, bundle)
		if err != nil {
			return nil, err
		}
		start := now
		update.StartDate = &start
		update.EndDate = end
	}

	won, err := s.purchases.Settle(ctx, purchase.ID, update)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("purchase %d: %w", purchase.ID, apperr.ErrAlreadySettled)
	}

	settledAt := update.SettledAt
	purchase.PaymentStatus = update.PaymentStatus
	purchase.StartDate = update.StartDate
	purchase.EndDate = update.EndDate
	purchase.SettledAt = &settledAt

	log.Infof("[Ledger] Settled purchase %d as %s", purchase.ID, outcome)
	s.publishSettled(ctx, purchase)
	return purchase, nil
}

func (s *Service) bundleFor(ctx context.Context, p *models.Purchase) (*models.ComboBundle, error) {
	if p.ComboBundleID == nil {
		return nil, nil
	}
	bundle, err := s.combos.GetByID(ctx, *p.ComboBundleID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: purchase %d references missing bundle %d", apperr.ErrInvalidEntitlementState, p.ID, *p.ComboBundleID)
		}
		return nil, err
	}
	return bundle, nil
}

func (s *Service) publishSettled(ctx context.Context, p *models.Purchase) {
	payload := SettledEvent{
		PurchaseID:    p.ID,
		UserID:        p.UserID,
		PlanType:      p.PlanType,
		PaymentStatus: p.PaymentStatus,
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
	}
	env := events.NewEnvelope(events.KeyPurchaseSettled, *p.SettledAt, payload)
	if err := s.publisher.PublishJSON(ctx, events.KeyPurchaseSettled, env); err != nil {
		log.Errorf("[Ledger] Failed to publish settlement of purchase %d: %v", p.ID, err)
	}
}

// ListByUser returns every purchase of the user, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uint) ([]models.Purchase, error) {
	return s.purchases.ListByUser(ctx, userID)
}

// ListByPlanType returns every purchase of a plan type, newest first.
func (s *Service) ListByPlanType(ctx context.Context, planType string) ([]models.Purchase, error) {
	if !models.IsValidPlanType(planType) {
		return nil, fmt.Errorf("%w: unknown plan type %q", apperr.ErrInvalidPlan, planType)
	}
	return s.purchases.ListByPlanType(ctx, planType)
}
