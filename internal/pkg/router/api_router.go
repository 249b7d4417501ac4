package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseGate/app/repository"
	apiv1 "github.com/ManuelReschke/CourseGate/internal/api/v1"
	"github.com/ManuelReschke/CourseGate/internal/pkg/middleware"
	"github.com/ManuelReschke/CourseGate/internal/pkg/ratelimit"
)

type ApiRouter struct {
	users          repository.UserRepository
	limiterStorage fiber.Storage
	maxPerMinute   int
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", ratelimit.New(h.limiterStorage, h.users, h.maxPerMinute, time.Minute))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, apiv1.NewAPIServer(), middleware.APIKeyAuthMiddleware(h.users))
}

// NewApiRouter creates the JSON API router. limiterStorage may be nil for
// in-process rate limit counters.
func NewApiRouter(users repository.UserRepository, limiterStorage fiber.Storage, maxPerMinute int) *ApiRouter {
	if maxPerMinute <= 0 {
		maxPerMinute = 120
	}
	return &ApiRouter{users: users, limiterStorage: limiterStorage, maxPerMinute: maxPerMinute}
}
