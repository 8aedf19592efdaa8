// middleware/user_context.go
package middleware

import (
	"strings"

	"buildinpublic-hub/logger"
	"buildinpublic-hub/repository"
	"buildinpublic-hub/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type contextKey string

const userProfileKey contextKey = "user_profile"

// Identity headers set by the gateway after GitHub sign-in.
const (
	HeaderUserHandle = "X-User-Handle"
	HeaderUserAvatar = "X-User-Avatar"
	HeaderUserEmail  = "X-User-Email"
)

// UserContextMiddleware extracts the acting GitHub user set by the gateway.
// Requests without a handle are rejected.
func UserContextMiddleware(log logrus.FieldLogger) fiber.Handler {
	log = logger.Component(log, "http")
	return func(c *fiber.Ctx) error {
		handle := strings.TrimSpace(c.Get(HeaderUserHandle))
		if handle == "" {
			log.Warnf("❌ [USER_CTX] %s required but missing: %s", HeaderUserHandle, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		profile := repository.UserProfile{
			Handle:    handle,
			AvatarURL: optionalHeader(c, HeaderUserAvatar),
			Email:     optionalHeader(c, HeaderUserEmail),
		}
		c.Locals(string(userProfileKey), profile)

		log.Debugf("👤 [USER_CTX] Handle=%s | Path: %s", handle, c.Path())
		return c.Next()
	}
}

// RequireAdmin lets through only handles the policy recognizes as operators.
// It must run after UserContextMiddleware.
func RequireAdmin(policy services.AdminPolicy, log logrus.FieldLogger) fiber.Handler {
	log = logger.Component(log, "http")
	return func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		if !ok || !policy.IsAdmin(user.Handle) {
			log.Warnf("🚫 [ADMIN] %q denied for %s", user.Handle, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden",
			})
		}
		return c.Next()
	}
}

// CurrentUser returns the profile stored by UserContextMiddleware.
func CurrentUser(c *fiber.Ctx) (repository.UserProfile, bool) {
	profile, ok := c.Locals(string(userProfileKey)).(repository.UserProfile)
	return profile, ok
}

func optionalHeader(c *fiber.Ctx, name string) *string {
	v := strings.TrimSpace(c.Get(name))
	if v == "" {
		return nil
	}
	return &v
}
