package entitlements

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusExpiring Status = "expiring"
	StatusExpired  Status = "expired"
	StatusNone     Status = "none"
)

const (
	Day = 24 * time.Hour

	// QuarterlyDays is the access window of the all-access quarterly plan.
	QuarterlyDays = 90

	// ExpiringBandDays is the number of remaining days during which access is
	// still granted but a renewal warning is shown.
	ExpiringBandDays = 7
)

var comboWindowDays = map[string]int{
	models.ComboDuration1Month:  30,
	models.ComboDuration3Months: 90,
	models.ComboDuration6Months: 180,
	models.ComboDuration1Year:   365,
}

// Entitlement is the derived access decision for one course. It is never
// stored; callers recompute it for every request.
type Entitlement struct {
	CourseID        uint       `json:"course_id"`
	CourseIDs       []uint     `json:"course_ids,omitempty"`
	PurchaseID      uint       `json:"purchase_id,omitempty"`
	PurchaseType    string     `json:"purchase_type,omitempty"`
	PaymentStatus   string     `json:"payment_status,omitempty"`
	AccessStartDate *time.Time `json:"access_start_date,omitempty"`
	AccessEndDate   *time.Time `json:"access_end_date"`
	Status          Status     `json:"status"`
	RemainingDays   int        `json:"remaining_days"`
	Lifetime        bool       `json:"lifetime"`
}

// Window is the minimal input of the status derivation.
type Window struct {
	PaymentStatus string
	Start         *time.Time
	End           *time.Time
}

// WindowDays returns the fixed length of a combo duration in days. lifetime
// is true for the lifetime sentinel.
func WindowDays(duration string) (days int, lifetime bool, err error) {
	if duration == models.ComboDurationLifetime {
		return 0, true, nil
	}
	days, ok := comboWindowDays[duration]
	if !ok {
		return 0, false, fmt.Errorf("%w: unknown combo duration %q", apperr.ErrInvalidEntitlementState, duration)
	}
	return days, false, nil
}

// AccessEndDate applies the duration rule for a purchase settled at start.
// A nil result means lifetime access. bundle is the combo the purchase
// references, if any, in its current state.
func AccessEndDate(planType string, start time.Time, bundle *models.ComboBundle) (*time.Time, error) {
	switch planType {
	case models.PlanSingle:
		return nil, nil
	case models.PlanQuarterly:
		end := start.Add(QuarterlyDays * Day)
		return &end, nil
	case models.PlanCombo:
		if bundle == nil {
			return nil, fmt.Errorf("%w: combo purchase without bundle", apperr.ErrInvalidEntitlementState)
		}
		return bundleEndDate(start, bundle)
	case models.PlanKit, models.PlanSchool:
		if bundle == nil {
			return nil, nil
		}
		return bundleEndDate(start, bundle)
	default:
		return nil, fmt.Errorf("%w: unknown plan type %q", apperr.ErrInvalidPlan, planType)
	}
}

func bundleEndDate(start time.Time, bundle *models.ComboBundle) (*time.Time, error) {
	days, lifetime, err := WindowDays(bundle.Duration)
	if err != nil {
		return nil, err
	}
	if lifetime {
		return nil, nil
	}
	end := start.Add(time.Duration(days) * Day)
	return &end, nil
}

// RemainingDays returns ceil((end - now) / 1 day).
func RemainingDays(now, end time.Time) int {
	d := end.Sub(now)
	days := int(d / Day)
	if d%Day > 0 {
		days++
	}
	return days
}

// Derive classifies a window at now. remaining is zero for lifetime and
// non-approved windows.
func Derive(now time.Time, w Window) (status Status, remaining int, err error) {
	if w.Start != nil && w.End != nil && w.End.Before(*w.Start) {
		return StatusNone, 0, fmt.Errorf("%w: end date %s before start date %s",
			apperr.ErrInvalidEntitlementState, w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	if w.PaymentStatus != models.PaymentStatusApproved {
		return StatusNone, 0, nil
	}
	if w.Start == nil {
		return StatusNone, 0, fmt.Errorf("%w: approved purchase without start date", apperr.ErrInvalidEntitlementState)
	}
	if w.End == nil {
		return StatusActive, 0, nil
	}

	remaining = RemainingDays(now, *w.End)
	switch {
	case remaining <= 0:
		return StatusExpired, remaining, nil
	case remaining <= ExpiringBandDays:
		return StatusExpiring, remaining, nil
	default:
		return StatusActive, remaining, nil
	}
}

// HasValidAccess reports whether the entitlement currently grants access.
// The expiring band still grants access.
func HasValidAccess(e Entitlement) bool {
	return e.Status == StatusActive || e.Status == StatusExpiring
}

// Progress returns the elapsed fraction of the access window, clamped to
// [0, 1]. ok is false for lifetime or windowless entitlements, which are
// rendered as complete.
func Progress(e Entitlement, now time.Time) (fraction float64, ok bool) {
	if e.Lifetime || e.AccessStartDate == nil || e.AccessEndDate == nil {
		return 1, false
	}
	total := e.AccessEndDate.Sub(*e.AccessStartDate)
	if total <= 0 {
		return 1, true
	}
	elapsed := now.Sub(*e.AccessStartDate)
	fraction = float64(elapsed) / float64(total)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return fraction, true
}

// Covers reports whether purchase p grants access to courseID. bundle must be
// the combo p references, if any.
func Covers(p models.Purchase, bundle *models.ComboBundle, courseID uint) bool {
	if p.PlanType == models.PlanQuarterly {
		return true
	}
	if p.CourseID != nil {
		return *p.CourseID == courseID
	}
	if p.ComboBundleID != nil && bundle != nil {
		return bundle.Contains(courseID)
	}
	return false
}

// Evaluate derives the entitlement a single purchase yields at now. The
// stored EndDate is ignored and recomputed from the duration rule.
func Evaluate(now time.Time, p models.Purchase, bundle *models.ComboBundle) (Entitlement, error) {
	if p.Price < 0 {
		return Entitlement{}, fmt.Errorf("%w: purchase %d has negative price %d", apperr.ErrInvalidEntitlementState, p.ID, p.Price)
	}

	e := Entitlement{
		PurchaseID:      p.ID,
		PurchaseType:    p.PlanType,
		PaymentStatus:   p.PaymentStatus,
		AccessStartDate: p.StartDate,
	}
	switch {
	case p.CourseID != nil:
		e.CourseID = *p.CourseID
		e.CourseIDs = []uint{*p.CourseID}
	case bundle != nil:
		e.CourseIDs = bundle.CourseIDs()
	}

	w := Window{PaymentStatus: p.PaymentStatus, Start: p.StartDate}
	if p.IsApproved() {
		if p.StartDate == nil {
			return Entitlement{}, fmt.Errorf("%w: purchase %d approved without start date", apperr.ErrInvalidEntitlementState, p.ID)
		}
		end, err := AccessEndDate(p.PlanType, *p.StartDate, bundle)
		if err != nil {
			return Entitlement{}, fmt.Errorf("purchase %d: %w", p.ID, err)
		}
		w.End = end
		e.AccessEndDate = end
		e.Lifetime = end == nil
	}

	status, remaining, err := Derive(now, w)
	if err != nil {
		return Entitlement{}, fmt.Errorf("purchase %d: %w", p.ID, err)
	}
	e.Status = status
	e.RemainingDays = remaining
	return e, nil
}

// rank orders candidates for surfacing: valid lifetime, valid fixed, expired,
// then pending or rejected.
func rank(e Entitlement) int {
	switch {
	case HasValidAccess(e) && e.Lifetime:
		return 4
	case HasValidAccess(e):
		return 3
	case e.Status == StatusExpired:
		return 2
	case e.PurchaseID != 0:
		return 1
	default:
		return 0
	}
}

// Best picks the entitlement to surface from all candidates for one course.
// Access is granted if any candidate grants it; among equals the furthest
// end date wins, and on a full tie the earlier candidate is kept.
func Best(candidates []Entitlement) Entitlement {
	best := Entitlement{Status: StatusNone}
	for _, c := range candidates {
		rc, rb := rank(c), rank(best)
		if rc > rb {
			best = c
			continue
		}
		if rc == rb && rc >= 2 && rc < 4 && c.AccessEndDate != nil && best.AccessEndDate != nil &&
			c.AccessEndDate.After(*best.AccessEndDate) {
			best = c
		}
	}
	return best
}
