package handlers

import (
	"context"

	"buildinpublic-hub/logger"
	"buildinpublic-hub/middleware"
	"buildinpublic-hub/models"
	"buildinpublic-hub/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// DeveloperOperations is the developer leaderboard surface.
type DeveloperOperations interface {
	SyncAll(ctx context.Context) (services.StatsReport, error)
	Leaderboard(ctx context.Context, limit int) ([]models.Developer, error)
}

type DeveloperHandler struct {
	devs DeveloperOperations
	log  logrus.FieldLogger
}

func NewDeveloperHandler(devs DeveloperOperations, log logrus.FieldLogger) *DeveloperHandler {
	return &DeveloperHandler{devs: devs, log: logger.Component(log, "http")}
}

// SetupStatsCronRoutes mounts the stats sync trigger. Like the spar sweep it bypasses the gateway.
func SetupStatsCronRoutes(app fiber.Router, h *DeveloperHandler, cronSecret string) {
	app.Post("/cron/sync-stats", middleware.CronAuthMiddleware(cronSecret, h.log), h.SyncStats)
}

func SetupDeveloperRoutes(app fiber.Router, h *DeveloperHandler) {
	app.Get("/leaderboard/developers", h.Leaderboard)
}

func (h *DeveloperHandler) SyncStats(c *fiber.Ctx) error {
	report, err := h.devs.SyncAll(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"synced":  report.Synced,
		"errors":  report.Errors,
		"total":   report.Total,
	})
}

func (h *DeveloperHandler) Leaderboard(c *fiber.Ctx) error {
	devs, err := h.devs.Leaderboard(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"leaderboard": devs})
}
