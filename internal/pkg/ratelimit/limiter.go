package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/CourseGate/app/models"
	"github.com/ManuelReschke/CourseGate/app/repository"
	"github.com/ManuelReschke/CourseGate/internal/pkg/cache"
	"github.com/ManuelReschke/CourseGate/internal/pkg/env"
	"github.com/ManuelReschke/CourseGate/internal/pkg/middleware"
)

// NewStorage returns a Redis storage for limiter counters on database 1
// (the cache uses database 0).
func NewStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

// KeyFunc identifies the caller: the user an API key resolves to, else the
// IP. Unknown keys count against the IP.
func KeyFunc(users repository.UserRepository) func(*fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		if users != nil {
			if raw := middleware.ExtractAPIKey(c); raw != "" {
				user, err := users.GetByAPIKeyHash(c.UserContext(), models.HashAPIKey(raw))
				if err == nil {
					return "user:" + strconv.FormatUint(uint64(user.ID), 10)
				}
			}
		}
		return "ip:" + c.IP()
	}
}

// New limits each caller to max requests per window. storage may be nil
// for an in-process counter.
func New(storage fiber.Storage, users repository.UserRepository, max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: KeyFunc(users),
		Storage:      storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, slow down",
			})
		},
	})
}
