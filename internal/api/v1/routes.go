package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseGate/internal/pkg/middleware"
)

// RegisterHandlers mounts the v1 routes. auth resolves the caller from the
// API key and must run before any user or admin route.
func RegisterHandlers(router fiber.Router, s *APIServer, auth fiber.Handler) {
	router.Get("/ping", s.GetPing)
	router.Get("/combos/:id/pricing", s.GetComboPricing)
	router.Post("/payments/webhook", s.PostPaymentWebhook)

	router.Post("/purchases", auth, middleware.RequireAuth, s.PostPurchase)
	router.Get("/purchases", auth, middleware.RequireAuth, s.GetPurchases)
	router.Get("/courses/:id/entitlement", auth, middleware.RequireAuth, s.GetCourseEntitlement)
	router.Get("/courses/:id/access", auth, middleware.RequireAuth, s.GetCourseAccess)

	admin := router.Group("/admin", auth, middleware.RequireAdmin)
	admin.Post("/purchases/:id/settle", s.PostAdminSettlePurchase)
	admin.Get("/purchases", s.GetAdminPurchases)
}
