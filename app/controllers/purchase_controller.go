package controllers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/internal/pkg/ledger"
	"github.com/ManuelReschke/CourseGate/internal/pkg/usercontext"
)

var validate = validator.New()

type createPurchaseRequest struct {
	PlanType      string `json:"plan_type" validate:"required"`
	CourseID      *uint  `json:"course_id" validate:"omitempty,gt=0"`
	ComboBundleID *uint  `json:"combo_bundle_id" validate:"omitempty,gt=0"`
	Price         int64  `json:"price"`
}

type settlePurchaseRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=approved rejected"`
}

// HandleCreatePurchase records a pending purchase for the caller.
func HandleCreatePurchase(c *fiber.Ctx) error {
	var req createPurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.PlanType = strings.ToLower(strings.TrimSpace(req.PlanType))
	if err := validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	purchase, err := svc().Ledger.RecordPurchase(c.UserContext(), usercontext.GetUserID(c), req.PlanType, ledger.Target{
		CourseID:      req.CourseID,
		ComboBundleID: req.ComboBundleID,
	}, req.Price)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(purchaseResponse(purchase))
}

// HandleListPurchases lists the caller's purchases, newest first.
func HandleListPurchases(c *fiber.Ctx) error {
	purchases, err := svc().Ledger.ListByUser(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"purchases": purchaseList(purchases)})
}

// HandleAdminSettlePurchase settles a pending purchase manually.
func HandleAdminSettlePurchase(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid purchase id")
	}
	var req settlePurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "outcome must be approved or rejected")
	}

	purchase, err := svc().Ledger.SettlePurchase(c.UserContext(), id, req.Outcome)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(purchaseResponse(purchase))
}

// HandleAdminListPurchases lists purchases of one plan type.
func HandleAdminListPurchases(c *fiber.Ctx) error {
	plan := strings.ToLower(strings.TrimSpace(c.Query("plan")))
	if plan == "" {
		return badRequest(c, "plan query parameter is required")
	}
	purchases, err := svc().Ledger.ListByPlanType(c.UserContext(), plan)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"purchases": purchaseList(purchases)})
}

func purchaseList(purchases []models.Purchase) []fiber.Map {
	out := make([]fiber.Map, 0, len(purchases))
	for i := range purchases {
		out = append(out, purchaseResponse(&purchases[i]))
	}
	return out
}

func purchaseResponse(p *models.Purchase) fiber.Map {
	return fiber.Map{
		"id":              p.ID,
		"user_id":         p.UserID,
		"plan_type":       p.PlanType,
		"course_id":       p.CourseID,
		"combo_bundle_id": p.ComboBundleID,
		"price":           p.Price,
		"payment_status":  p.PaymentStatus,
		"start_date":      formatTimePtr(p.StartDate),
		"end_date":        formatTimePtr(p.EndDate),
		"settled_at":      formatTimePtr(p.SettledAt),
	}
}
