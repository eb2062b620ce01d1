package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Rate limiting per endpoint class. The map endpoints get a generous budget
// (panning fires many viewport queries); the import trigger is throttled hard
// because one run downloads every agency feed.

// APIRateLimiter covers the public query endpoints.
// 200 requests per minute per IP.
func APIRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        200,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "アクセスが集中しています。しばらくしてからお試しください",
				"retry_after": 60,
			})
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}

// ImportRateLimiter covers the import trigger.
// 5 requests per 5 minutes per IP.
func ImportRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        5,
		Expiration: 5 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "インポートの実行回数が上限に達しました",
				"retry_after": 300,
			})
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}
