package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
	"github.com/ManuelReschke/CourseGate/internal/pkg/payments"
)

// writeError maps domain errors to status codes and user-safe messages.
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "The requested record does not exist"})
	case errors.Is(err, apperr.ErrAlreadySettled):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_settled", "message": "This purchase has already been settled"})
	case errors.Is(err, apperr.ErrComboInactive):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "combo_inactive", "message": "This bundle is no longer available"})
	case errors.Is(err, apperr.ErrEmptyCombo):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "empty_combo", "message": "This bundle does not contain any courses"})
	case errors.Is(err, apperr.ErrInvalidComboPricing):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_combo_pricing", "message": "This bundle is misconfigured, please contact support"})
	case errors.Is(err, apperr.ErrInvalidPlan):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_plan", "message": "The selected plan does not match the purchase target"})
	case errors.Is(err, apperr.ErrPriceBelowCatalog):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "price_below_catalog", "message": "The price does not cover the current catalog price"})
	case errors.Is(err, apperr.ErrInvalidEntitlementState):
		log.Errorf("[API] Invalid entitlement state: %v", err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_entitlement_state", "message": "Your access could not be determined, please contact support"})
	case errors.Is(err, payments.ErrAmountMismatch):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "amount_mismatch", "message": "Paid amount does not cover the purchase price"})
	case errors.Is(err, payments.ErrMissingPurchase):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_payload", "message": "Notice does not reference a purchase"})
	default:
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Something went wrong"})
	}
}

func parseIDParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
