package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/CourseGate/app/controllers"
)

// Pong is the ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the public v1 surface described in
// public/docs/v1/openapi.yml.
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetComboPricing is public so the storefront can render bundle prices.
func (s *APIServer) GetComboPricing(c *fiber.Ctx) error {
	return controllers.HandleGetComboPricing(c)
}

func (s *APIServer) PostPurchase(c *fiber.Ctx) error {
	return controllers.HandleCreatePurchase(c)
}

func (s *APIServer) GetPurchases(c *fiber.Ctx) error {
	return controllers.HandleListPurchases(c)
}

func (s *APIServer) GetCourseEntitlement(c *fiber.Ctx) error {
	return controllers.HandleGetEntitlement(c)
}

func (s *APIServer) GetCourseAccess(c *fiber.Ctx) error {
	return controllers.HandleCheckAccess(c)
}

func (s *APIServer) PostAdminSettlePurchase(c *fiber.Ctx) error {
	return controllers.HandleAdminSettlePurchase(c)
}

func (s *APIServer) GetAdminPurchases(c *fiber.Ctx) error {
	return controllers.HandleAdminListPurchases(c)
}

// PostPaymentWebhook is authenticated by the payload signature, not by an
// API key.
func (s *APIServer) PostPaymentWebhook(c *fiber.Ctx) error {
	return controllers.HandlePaymentWebhook(c)
}
