package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"buildinpublic-hub/bootstrap"
	"buildinpublic-hub/config"
	"buildinpublic-hub/handlers"
	"buildinpublic-hub/logger"
	"buildinpublic-hub/middleware"
	"buildinpublic-hub/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg, loadedEnv, err := config.Load()
	log := logger.New("buildinpublic-hub", "info")
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	log = logger.New("buildinpublic-hub", cfg.LogLevel)
	if !loadedEnv {
		log.Warn("⚠️  No .env file found, reading environment variables directly")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer app.Close()

	server := fiber.New(fiber.Config{
		AppName:               "buildinpublic-hub",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
	})
	server.Use(recover.New())
	server.Use(app.Metrics.Middleware())
	server.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-Handle, X-User-Avatar, X-User-Email",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	sparHandler := handlers.NewSparHandler(app.Spars, log)
	devHandler := handlers.NewDeveloperHandler(app.Stats, log)

	// Reached directly, not through the gateway.
	handlers.SetupOpsRoutes(server, sparHandler, app.Registry, app.Ping, cfg.CronSecret)
	handlers.SetupStatsCronRoutes(server, devHandler, cfg.CronSecret)
	handlers.SetupWebhookRoutes(server, handlers.NewStripeWebhookHandler(app.Spars, cfg.Spar.PaymentsEnabled, cfg.Stripe.WebhookSecret, log))

	// 🔐 Everything below requires the gateway token
	server.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, log))
	handlers.SetupSparRoutes(server, sparHandler, app.Admins)
	handlers.SetupDeveloperRoutes(server, devHandler)

	if cfg.Spar.SchedulerEnabled {
		sweeper, err := workers.NewSparSweeper(app.Spars, cfg.Spar.SweepInterval, app.Clock, log)
		if err != nil {
			log.WithError(err).Fatal("failed to create spar sweeper")
		}
		if err := sweeper.Start(ctx); err != nil {
			log.WithError(err).Fatal("failed to start spar sweeper")
		}

		refresher, err := workers.NewStatsRefresher(app.Stats, cfg.Stats.SyncInterval, app.Clock, log)
		if err != nil {
			log.WithError(err).Fatal("failed to create stats refresher")
		}
		if err := refresher.Start(ctx); err != nil {
			log.WithError(err).Fatal("failed to start stats refresher")
		}
	}

	go func() {
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("server error")
			stop()
		}
	}()

	log.Infof("✅ Server running on http://localhost:%s", cfg.Port)
	log.Infof("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	log.Info("Shutting down server...")
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
}
