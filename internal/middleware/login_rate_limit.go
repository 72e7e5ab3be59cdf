package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// LoginRateLimit limits login attempts per identification (falling back to
// the client IP) in a fixed one-minute window.
func LoginRateLimit(cache redis.UniversalClient, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		key := "rl:login:" + loginSubject(c)

		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}

func loginSubject(c *fiber.Ctx) string {
	var req struct {
		IDType   string `json:"id_type"`
		IDNumber string `json:"id_number"`
	}
	_ = c.BodyParser(&req)
	idNumber := strings.TrimSpace(req.IDNumber)
	if idNumber == "" {
		return "ip:" + c.IP()
	}
	return strings.ToUpper(strings.TrimSpace(req.IDType)) + ":" + idNumber
}
