package controllers

import "github.com/gofiber/fiber/v2"

// HandlePing is the liveness probe.
func HandlePing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}
