package apperr

import "errors"

// Access and ledger errors. None of them are transient; callers translate
// them into user-facing messages and never retry.
var (
	// ErrInvalidPlan indicates a purchase target that does not fit its plan type.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrAlreadySettled indicates a settlement attempt on a purchase that is no longer pending.
	ErrAlreadySettled = errors.New("purchase already settled")

	// ErrComboInactive indicates the bundle has been withdrawn from sale.
	ErrComboInactive = errors.New("combo bundle is inactive")

	// ErrEmptyCombo indicates a bundle without member courses.
	ErrEmptyCombo = errors.New("combo bundle has no courses")

	// ErrInvalidComboPricing indicates a bundle priced above its parts or with an out-of-range discount.
	ErrInvalidComboPricing = errors.New("invalid combo pricing")

	// ErrInvalidEntitlementState indicates stored purchase data that cannot yield a trustworthy access window.
	ErrInvalidEntitlementState = errors.New("invalid entitlement state")

	// ErrPriceBelowCatalog indicates a purchase priced below the current catalog price of its target.
	ErrPriceBelowCatalog = errors.New("purchase price below catalog price")

	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
)
