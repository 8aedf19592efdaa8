// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"buildinpublic-hub/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// GatewayAuthMiddleware validates the Bearer token the gateway attaches to proxied requests.
// An empty expected token disables the check (local development).
func GatewayAuthMiddleware(expectedToken string, log logrus.FieldLogger) fiber.Handler {
	return bearerToken("GATEWAY_AUTH", "gateway authentication token", expectedToken, log)
}

// CronAuthMiddleware guards batch trigger endpoints with CRON_SECRET.
func CronAuthMiddleware(secret string, log logrus.FieldLogger) fiber.Handler {
	return bearerToken("CRON_AUTH", "cron secret", secret, log)
}

func bearerToken(tag, what, expected string, log logrus.FieldLogger) fiber.Handler {
	log = logger.Component(log, "http")
	if expected == "" {
		log.Warnf("⚠️ [%s] no %s configured, requests are not authenticated", tag, what)
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Warnf("🚫 [%s] Missing Authorization header for %s", tag, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": what + " missing",
			})
		}

		// Accept "Bearer <token>" or the raw value.
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			log.Warnf("❌ [%s] Invalid token for %s", tag, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid " + what,
			})
		}
		return c.Next()
	}
}
