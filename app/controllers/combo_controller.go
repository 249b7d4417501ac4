package controllers

import "github.com/gofiber/fiber/v2"

// HandleGetComboPricing returns the bundle's courses with original and
// effective price.
func HandleGetComboPricing(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid combo id")
	}
	pricing, err := svc().Pricer.ResolveCombo(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(pricing)
}
