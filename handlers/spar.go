// handlers/spar_routes.go
package handlers

import (
	"context"

	"buildinpublic-hub/logger"
	"buildinpublic-hub/middleware"
	"buildinpublic-hub/models"
	"buildinpublic-hub/repository"
	"buildinpublic-hub/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// SparOperations is the spar API the routes drive.
type SparOperations interface {
	Create(ctx context.Context, actor repository.UserProfile, in services.CreateSparInput) (*models.Spar, error)
	Accept(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error)
	Start(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error)
	Cancel(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error)
	ForceComplete(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error)
	Sync(ctx context.Context, id string) (*services.SyncResult, error)
	Sweep(ctx context.Context) (services.SweepReport, error)
	Get(ctx context.Context, id string) (*models.Spar, error)
	List(ctx context.Context, filter repository.SparFilter) ([]models.Spar, error)
	Commits(ctx context.Context, id string) (*models.Spar, []models.SparCommit, error)
	Leaderboard(ctx context.Context, limit int) ([]models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
}

type SparHandler struct {
	spars SparOperations
	log   logrus.FieldLogger
}

func NewSparHandler(spars SparOperations, log logrus.FieldLogger) *SparHandler {
	return &SparHandler{spars: spars, log: logger.Component(log, "http")}
}

// SetupSparRoutes mounts the public, user and admin spar routes.
func SetupSparRoutes(app fiber.Router, h *SparHandler, admins services.AdminPolicy) {
	// 🔓 Public
	app.Get("/spars", h.List)
	app.Get("/spars/:id", h.Get)
	app.Get("/spars/:id/commits", h.Commits)
	app.Post("/spars/:id/sync", h.Sync)
	app.Get("/leaderboard/spars", h.Leaderboard)
	app.Get("/users/search", h.SearchUsers)

	// 🔐 Require the gateway's user context
	userCtx := middleware.UserContextMiddleware(h.log)
	app.Post("/spars", userCtx, h.Create)
	app.Post("/spars/:id/accept", userCtx, h.Accept)
	app.Post("/spars/:id/start", userCtx, h.Start)
	app.Post("/spars/:id/cancel", userCtx, h.Cancel)

	// 🔒 Admin
	admin := app.Group("/admin", userCtx, middleware.RequireAdmin(admins, h.log))
	admin.Post("/spars/:id/complete", h.ForceComplete)
}

func (h *SparHandler) List(c *fiber.Ctx) error {
	spars, err := h.spars.List(c.UserContext(), repository.SparFilter{
		Status: models.SparStatus(c.Query("status")),
		Limit:  c.QueryInt("limit", 20),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"spars": spars})
}

func (h *SparHandler) Get(c *fiber.Ctx) error {
	spar, err := h.spars.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"spar": spar})
}

func (h *SparHandler) Commits(c *fiber.Ctx) error {
	spar, commits, err := h.spars.Commits(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"spar": spar, "commits": commits})
}

func (h *SparHandler) Sync(c *fiber.Ctx) error {
	res, err := h.spars.Sync(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(res)
}

func (h *SparHandler) Leaderboard(c *fiber.Ctx) error {
	users, err := h.spars.Leaderboard(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"leaderboard": users})
}

// userSummary keeps contact details out of search results.
type userSummary struct {
	ID             string  `json:"id"`
	GitHubUsername string  `json:"github_username"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
	SparWins       int64   `json:"spar_wins"`
	SparLosses     int64   `json:"spar_losses"`
}

func (h *SparHandler) SearchUsers(c *fiber.Ctx) error {
	users, err := h.spars.SearchUsers(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, h.log, err)
	}
	res := make([]userSummary, len(users))
	for i, u := range users {
		res[i] = userSummary{
			ID:             u.ID,
			GitHubUsername: u.GitHubUsername,
			AvatarURL:      u.AvatarURL,
			SparWins:       u.SparWins,
			SparLosses:     u.SparLosses,
		}
	}
	return c.JSON(fiber.Map{"users": res})
}

func (h *SparHandler) Create(c *fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	var in services.CreateSparInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	spar, err := h.spars.Create(c.UserContext(), user, in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"spar": spar})
}

type actorAction func(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error)

func (h *SparHandler) act(c *fiber.Ctx, action actorAction) error {
	user, _ := middleware.CurrentUser(c)
	spar, err := action(c.UserContext(), c.Params("id"), user)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"spar": spar})
}

func (h *SparHandler) Accept(c *fiber.Ctx) error        { return h.act(c, h.spars.Accept) }
func (h *SparHandler) Start(c *fiber.Ctx) error         { return h.act(c, h.spars.Start) }
func (h *SparHandler) Cancel(c *fiber.Ctx) error        { return h.act(c, h.spars.Cancel) }
func (h *SparHandler) ForceComplete(c *fiber.Ctx) error { return h.act(c, h.spars.ForceComplete) }

// Sweep runs one batch pass; mounted behind the cron secret.
func (h *SparHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.spars.Sweep(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(report)
}
