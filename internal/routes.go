package internal

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	v1 "pagelens/api/v1"
	"pagelens/internal/analytics"
	"pagelens/internal/config"
	"pagelens/internal/events"
	"pagelens/internal/http"
	"pagelens/internal/http/middleware"
	"pagelens/internal/metrics"
)

// publicCORSConfig is shared by the public endpoints, which page builders
// call from any origin.
var publicCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referer, User-Agent, X-API-Key, X-User-ID, X-User-Role",
}

// RouteDeps are the collaborators the routes are built from.
type RouteDeps struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *gorm.DB
	Analytics *analytics.Service
	Recorder  *events.Recorder
	Metrics   *metrics.Metrics
}

// MountRoutes registers every route on app.
func MountRoutes(app *fiber.App, deps RouteDeps) {
	cfg := deps.Config

	// Rate limiting only applies in production; it would get in the way of
	// local testing.
	conditionalRateLimiter := func(limit fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limit(c)
			}
			return c.Next()
		}
	}
	trackRateLimiter := conditionalRateLimiter(limiter.New(limiter.Config{
		Max:        cfg.TrackRateLimit,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(http.Response{Message: "Too many requests"})
		},
	}))

	identity := middleware.IdentityContext(deps.Logger)

	app.Get("/_health", http.HealthIndexAction(deps.DB, deps.Logger))
	app.Head("/_health", http.HealthIndexAction(deps.DB, deps.Logger))
	app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	api := app.Group("/analytics", cors.New(publicCORSConfig), identity)

	// === PUBLIC INGEST ===
	track := v1.NewTrackHandler(deps.Recorder, deps.Logger)
	api.Post("/track",
		trackRateLimiter,
		middleware.SecFetchSite("cross-site", "same-site", "same-origin", "none"),
		track.TrackAction)

	// === READ API ===
	h := http.NewHandler(deps.Analytics, deps.Logger)
	auth := middleware.APIKeyAuth(cfg.APIKey, deps.Logger)
	api.Get("/location", auth, h.LocationAction)
	api.Get("/links", auth, h.LinksAction)
	api.Get("/peak-hours", auth, h.PeakHoursAction)
	api.Get("/time-filtered", auth, h.TimeFilteredAction)
	api.Get("/dashboard", auth, h.DashboardAction)
	api.Get("/real-time", auth, h.RealTimeAction)
	api.Get("/export", auth, h.ExportAction)
	api.Get("/events", auth, h.EventsAction)
}
