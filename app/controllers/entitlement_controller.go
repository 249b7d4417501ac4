package controllers

import (
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/internal/pkg/entitlements"
	"github.com/ManuelReschke/CourseGate/internal/pkg/usercontext"
)

// HandleGetEntitlement returns the access state of the caller for one course.
func HandleGetEntitlement(c *fiber.Ctx) error {
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid course id")
	}

	s := svc()
	ent, err := s.Engine.GetEntitlement(c.UserContext(), usercontext.GetUserID(c), courseID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(entitlementResponse(ent, s.Engine))
}

// HandleCheckAccess answers 200 when the caller may open the course and 403
// otherwise.
func HandleCheckAccess(c *fiber.Ctx) error {
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid course id")
	}

	ent, err := svc().Engine.GetEntitlement(c.UserContext(), usercontext.GetUserID(c), courseID)
	if err != nil {
		return writeError(c, err)
	}
	if !entitlements.HasValidAccess(ent) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "no_access",
			"message": accessDeniedMessage(ent),
			"status":  ent.Status,
		})
	}
	return c.JSON(fiber.Map{"access": true, "status": ent.Status, "remaining_days": ent.RemainingDays, "lifetime": ent.Lifetime})
}

func accessDeniedMessage(ent entitlements.Entitlement) string {
	switch {
	case ent.Status == entitlements.StatusExpired:
		return "Your access has expired, renew to continue"
	case ent.PaymentStatus == models.PaymentStatusPending:
		return "Your payment is still being processed"
	case ent.PaymentStatus == models.PaymentStatusRejected:
		return "Your payment was not approved"
	default:
		return "You have not purchased this course"
	}
}

func entitlementResponse(ent entitlements.Entitlement, engine *entitlements.Engine) fiber.Map {
	var progress interface{}
	if ent.PurchaseID != 0 && ent.AccessStartDate != nil {
		if fraction, ok := entitlements.Progress(ent, engine.Now()); ok {
			progress = math.Round(fraction * 100)
		} else {
			progress = 100.0
		}
	}

	return fiber.Map{
		"course_id":         ent.CourseID,
		"course_ids":        ent.CourseIDs,
		"purchase_id":       ent.PurchaseID,
		"purchase_type":     ent.PurchaseType,
		"payment_status":    ent.PaymentStatus,
		"status":            ent.Status,
		"has_access":        entitlements.HasValidAccess(ent),
		"remaining_days":    ent.RemainingDays,
		"lifetime":          ent.Lifetime,
		"access_start_date": formatTimePtr(ent.AccessStartDate),
		"access_end_date":   formatTimePtr(ent.AccessEndDate),
		"progress_percent":  progress,
	}
}
