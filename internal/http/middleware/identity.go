package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	identityKey = "identity"
)

// Identity is the caller as vouched for by the upstream auth layer. Both
// fields are empty for anonymous callers.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// IdentityContext copies the caller identity from the trusted upstream
// headers into the request locals.
func IdentityContext(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := Identity{
			UserID: strings.TrimSpace(c.Get(HeaderUserID)),
			Role:   strings.ToLower(strings.TrimSpace(c.Get(HeaderUserRole))),
		}
		c.Locals(identityKey, identity)
		if !identity.Anonymous() {
			logger.Debug("Applied caller identity",
				slog.String("user_id", identity.UserID),
				slog.String("role", identity.Role))
		}
		return c.Next()
	}
}

// IdentityFrom returns the identity set by IdentityContext, or an anonymous
// identity when the middleware did not run.
func IdentityFrom(c *fiber.Ctx) Identity {
	identity, _ := c.Locals(identityKey).(Identity)
	return identity
}
