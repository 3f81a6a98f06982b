package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"dbStatus"`
}

// HealthIndexAction reports "degraded" with status 503 when the database
// does not answer a ping.
func HealthIndexAction(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbStatus := "ok"

		if db == nil {
			dbStatus = "error"
			logger.Error("Database connection unavailable")
		} else if sqlDB, err := db.DB(); err != nil {
			dbStatus = "error"
			logger.Error("Database connection error", slog.Any("error", err))
		} else if err := sqlDB.PingContext(c.UserContext()); err != nil {
			dbStatus = "error"
			logger.Error("Database ping failed", slog.Any("error", err))
		}

		health := HealthStatus{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			DBStatus:  dbStatus,
		}
		if dbStatus != "ok" {
			health.Status = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(health)
		}
		return c.JSON(health)
	}
}
