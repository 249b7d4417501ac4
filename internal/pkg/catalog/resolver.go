package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository"
	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
	"github.com/ManuelReschke/CourseGate/internal/pkg/cache"
)

// PricingTTL bounds how long a cached combo price may lag behind catalog edits.
const PricingTTL = 5 * time.Minute

// Pricer resolves the current price of a combo bundle.
type Pricer interface {
	ResolveCombo(ctx context.Context, comboID uint) (*ComboPricing, error)
}

// Resolver expands combo bundles into their courses and prices them.
type Resolver struct {
	combos  repository.ComboRepository
	courses repository.CourseRepository
}

func NewResolver(combos repository.ComboRepository, courses repository.CourseRepository) *Resolver {
	return &Resolver{combos: combos, courses: courses}
}

// Bundle loads the bundle and its courses in bundle order.
func (r *Resolver) Bundle(ctx context.Context, comboID uint) (*models.ComboBundle, []models.Course, error) {
	bundle, err := r.combos.GetByID(ctx, comboID)
	if err != nil {
		return nil, nil, err
	}
	if !bundle.IsActive {
		return bundle, nil, fmt.Errorf("combo %d: %w", bundle.ID, apperr.ErrComboInactive)
	}
	ids := bundle.CourseIDs()
	if len(ids) == 0 {
		return bundle, nil, fmt.Errorf("combo %d: %w", bundle.ID, apperr.ErrEmptyCombo)
	}

	found, err := r.courses.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[uint]models.Course, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	courses := make([]models.Course, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, nil, fmt.Errorf("combo %d course %d: %w", bundle.ID, id, apperr.ErrNotFound)
		}
		courses = append(courses, c)
	}
	return bundle, courses, nil
}

// ResolveCombo returns the bundle's courses and its effective price.
func (r *Resolver) ResolveCombo(ctx context.Context, comboID uint) (*ComboPricing, error) {
	bundle, courses, err := r.Bundle(ctx, comboID)
	if err != nil {
		return nil, err
	}
	return PriceCombo(bundle, courses)
}

// Cache is the subset of the cache store used for pricing results.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedResolver serves combo pricing from Redis and falls back to the
// resolver on a miss. Every hit is checked against the bundle's current
// pricing fields, so a deactivated or repriced bundle is never served from
// cache. Course price edits may lag by at most PricingTTL. Errors are never
// cached.
type CachedResolver struct {
	next   Pricer
	combos repository.ComboRepository
	cache  Cache
	ttl    time.Duration
}

func NewCachedResolver(next Pricer, combos repository.ComboRepository, c Cache) *CachedResolver {
	return &CachedResolver{next: next, combos: combos, cache: c, ttl: PricingTTL}
}

type cachedPricing struct {
	Fingerprint string        `json:"fingerprint"`
	Pricing     *ComboPricing `json:"pricing"`
}

func pricingKey(comboID uint) string {
	return fmt.Sprintf("combo:pricing:%d", comboID)
}

// fingerprint covers every bundle field that changes its price or contents.
func fingerprint(b *models.ComboBundle) string {
	discountPrice := "-"
	if b.DiscountPrice != nil {
		discountPrice = strconv.FormatInt(*b.DiscountPrice, 10)
	}
	return fmt.Sprintf("%t|%d|%s|%s|%v", b.IsActive, b.DiscountPercentage, discountPrice, b.Duration, b.CourseIDs())
}

func (r *CachedResolver) ResolveCombo(ctx context.Context, comboID uint) (*ComboPricing, error) {
	key := pricingKey(comboID)
	bundle, err := r.combos.GetByID(ctx, comboID)
	if err != nil {
		return nil, err
	}
	if !bundle.IsActive {
		if err := r.Invalidate(ctx, comboID); err != nil {
			log.Warnf("[Catalog] Could not drop cache entry %s: %v", key, err)
		}
		return nil, fmt.Errorf("combo %d: %w", bundle.ID, apperr.ErrComboInactive)
	}
	fp := fingerprint(bundle)

	raw, err := r.cache.Get(ctx, key)
	if err == nil {
		var entry cachedPricing
		switch {
		case json.Unmarshal([]byte(raw), &entry) != nil || entry.Pricing == nil:
			log.Errorf("[Catalog] Discarding unreadable cache entry %s", key)
		case entry.Fingerprint == fp:
			return entry.Pricing, nil
		default:
			log.Infof("[Catalog] Combo %d changed since it was cached", comboID)
		}
	} else if !cache.IsMiss(err) {
		log.Errorf("[Catalog] Cache read failed for %s: %v", key, err)
	}

	pricing, err := r.next.ResolveCombo(ctx, comboID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(cachedPricing{Fingerprint: fp, Pricing: pricing}); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			log.Errorf("[Catalog] Cache write failed for %s: %v", key, err)
		}
	}
	return pricing, nil
}

// Invalidate drops the cached price of a bundle.
func (r *CachedResolver) Invalidate(ctx context.Context, comboID uint) error {
	return r.cache.Delete(ctx, pricingKey(comboID))
}
