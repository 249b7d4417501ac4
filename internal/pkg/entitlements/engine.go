package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository"
	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
	"github.com/ManuelReschke/CourseGate/internal/pkg/clock"
)

// Engine resolves entitlements from the purchase ledger and the current
// state of the combo catalog.
type Engine struct {
	purchases repository.PurchaseRepository
	combos    repository.ComboRepository
	clock     clock.Clock
}

// NewEngine creates an entitlement engine from injected repositories and clock.
func NewEngine(purchases repository.PurchaseRepository, combos repository.ComboRepository, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.System()
	}
	return &Engine{purchases: purchases, combos: combos, clock: clk}
}

// Now returns the engine's notion of the current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// GetEntitlement evaluates every purchase of the user that covers the course
// and surfaces the strongest one. A user without any covering purchase gets
// status none. Pending or rejected purchases whose bundle is gone grant
// nothing and are skipped.
func (e *Engine) GetEntitlement(ctx context.Context, userID, courseID uint) (Entitlement, error) {
	purchases, err := e.purchases.ListByUser(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}

	now := e.clock.Now()
	bundles := make(map[uint]*models.ComboBundle)
	candidates := make([]Entitlement, 0, len(purchases))
	for _, p := range purchases {
		if p.CourseID != nil && *p.CourseID != courseID {
			continue
		}
		bundle, err := e.bundleFor(ctx, p, bundles)
		if err != nil {
			if !p.IsApproved() && errors.Is(err, apperr.ErrInvalidEntitlementState) {
				log.Warnf("[Entitlements] Skipping unsettled purchase %d: %v", p.ID, err)
				continue
			}
			return Entitlement{}, err
		}
		if !Covers(p, bundle, courseID) {
			continue
		}
		ent, err := Evaluate(now, p, bundle)
		if err != nil {
			return Entitlement{}, err
		}
		candidates = append(candidates, ent)
	}

	best := Best(candidates)
	best.CourseID = courseID
	return best, nil
}

// EvaluatePurchase derives the entitlement of one purchase at the current time.
func (e *Engine) EvaluatePurchase(ctx context.Context, p models.Purchase) (Entitlement, error) {
	bundle, err := e.bundleFor(ctx, p, nil)
	if err != nil {
		return Entitlement{}, err
	}
	return Evaluate(e.clock.Now(), p, bundle)
}

func (e *Engine) bundleFor(ctx context.Context, p models.Purchase, seen map[uint]*models.ComboBundle) (*models.ComboBundle, error) {
	if p.ComboBundleID == nil {
		return nil, nil
	}
	id := *p.ComboBundleID
	if b, ok := seen[id]; ok {
		return b, nil
	}
	bundle, err := e.combos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: purchase %d references missing bundle %d", apperr.ErrInvalidEntitlementState, p.ID, id)
		}
		return nil, err
	}
	if seen != nil {
		seen[id] = bundle
	}
	return bundle, nil
}
