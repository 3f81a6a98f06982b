package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SecFetchSite rejects browser requests whose Sec-Fetch-Site header is not
// in allowed. Requests without the header (server side integrations, old
// browsers) pass.
func SecFetchSite(allowed ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site := strings.ToLower(strings.TrimSpace(c.Get("Sec-Fetch-Site")))
		if site == "" || slices.Contains(allowed, site) {
			return c.Next()
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Request origin not allowed",
		})
	}
}
