package catalog

import (
	"fmt"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
)

// ComboPricing is the priced expansion of a combo bundle. All amounts are in
// the smallest currency unit.
type ComboPricing struct {
	ComboID        uint            `json:"combo_id"`
	Duration       string          `json:"duration"`
	Courses        []models.Course `json:"courses"`
	OriginalTotal  int64           `json:"original_total"`
	EffectivePrice int64           `json:"effective_price"`
	DiscountAmount int64           `json:"discount_amount"`
}

// PriceCombo computes the bundle price from its courses, given in bundle
// order. An explicit DiscountPrice wins over DiscountPercentage.
func PriceCombo(bundle *models.ComboBundle, courses []models.Course) (*ComboPricing, error) {
	if !bundle.IsActive {
		return nil, fmt.Errorf("combo %d: %w", bundle.ID, apperr.ErrComboInactive)
	}
	if len(courses) == 0 {
		return nil, fmt.Errorf("combo %d: %w", bundle.ID, apperr.ErrEmptyCombo)
	}

	var total int64
	for _, c := range courses {
		if c.Price <= 0 {
			return nil, fmt.Errorf("%w: combo %d course %d has price %d", apperr.ErrInvalidComboPricing, bundle.ID, c.ID, c.Price)
		}
		total += c.Price
	}

	pricing := &ComboPricing{
		ComboID:       bundle.ID,
		Duration:      bundle.Duration,
		Courses:       courses,
		OriginalTotal: total,
	}

	if bundle.DiscountPrice != nil {
		price := *bundle.DiscountPrice
		if price < 0 {
			return nil, fmt.Errorf("%w: combo %d has negative discount price %d", apperr.ErrInvalidComboPricing, bundle.ID, price)
		}
		if price > total {
			return nil, fmt.Errorf("%w: combo %d priced %d above its parts %d", apperr.ErrInvalidComboPricing, bundle.ID, price, total)
		}
		pricing.EffectivePrice = price
		pricing.DiscountAmount = total - price
		return pricing, nil
	}

	pct := int64(bundle.DiscountPercentage)
	if pct < 0 || pct > 100 {
		return nil, fmt.Errorf("%w: combo %d discount percentage %d out of range", apperr.ErrInvalidComboPricing, bundle.ID, pct)
	}
	pricing.DiscountAmount = roundedPercent(total, pct)
	pricing.EffectivePrice = total - pricing.DiscountAmount
	return pricing, nil
}

// roundedPercent returns round(amount * pct / 100) with halves rounded up.
// amount and pct are non-negative.
func roundedPercent(amount, pct int64) int64 {
	return (amount*pct + 50) / 100
}
