package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const HeaderAPIKey = "X-API-Key"

// APIKeyAuth guards the read API with a shared key, sent either as
// X-API-Key or as "Authorization: Bearer <key>". An empty key disables the
// check.
func APIKeyAuth(key string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}

		provided := c.Get(HeaderAPIKey)
		if provided == "" {
			authHeader := c.Get(fiber.HeaderAuthorization)
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return unauthorized(c, "Missing API key")
			}
			provided = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			logger.Warn("Rejected request with invalid API key",
				slog.String("path", c.Path()),
				slog.String("ip", c.IP()))
			return unauthorized(c, "Invalid API key")
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
