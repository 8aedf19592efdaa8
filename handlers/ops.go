// handlers/ops_routes.go
package handlers

import (
	"context"
	"time"

	"buildinpublic-hub/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger checks a dependency is reachable.
type Pinger func(ctx context.Context) error

// SetupOpsRoutes mounts liveness, metrics and the cron sweep trigger.
// These routes do not pass through the gateway.
func SetupOpsRoutes(app fiber.Router, h *SparHandler, gatherer prometheus.Gatherer, ping Pinger, cronSecret string) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				h.log.WithError(err).Warn("health check failed")
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	app.Post("/cron/spar-sweep", middleware.CronAuthMiddleware(cronSecret, h.log), h.Sweep)
}
