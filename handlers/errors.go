package handlers

import (
	"errors"

	"buildinpublic-hub/errs"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden), errors.Is(err, errs.ErrOpponentMismatch):
		return fiber.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, errs.ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, errs.ErrUpstreamFetch):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, log logrus.FieldLogger, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{"method": c.Method(), "path": c.Path()}).Error("request failed")
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
