// handlers/webhook_routes.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/logger"
	"buildinpublic-hub/models"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// PaymentRecorder marks a participant's entry fee as paid.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, id string, role models.SparRole, paymentIntentID string) error
}

type StripeWebhookHandler struct {
	payments PaymentRecorder
	enabled  bool
	secret   string
	log      logrus.FieldLogger
}

func NewStripeWebhookHandler(payments PaymentRecorder, enabled bool, secret string, log logrus.FieldLogger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		payments: payments,
		enabled:  enabled,
		secret:   secret,
		log:      logger.Component(log, "stripe"),
	}
}

func SetupWebhookRoutes(app fiber.Router, h *StripeWebhookHandler) {
	app.Post("/webhooks/stripe", h.Handle)
}

func (h *StripeWebhookHandler) Handle(c *fiber.Ctx) error {
	if !h.enabled {
		return c.JSON(fiber.Map{"message": "Payments disabled"})
	}

	sig := c.Get("Stripe-Signature")
	if sig == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing signature"})
	}
	event, err := webhook.ConstructEventWithOptions(c.Body(), sig, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.log.WithError(err).Warn("❌ webhook signature verification failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payment intent"})
		}
		sparID := pi.Metadata["spar_id"]
		role := models.SparRole(pi.Metadata["role"])
		if sparID == "" || !role.Valid() {
			h.log.WithField("payment_intent", pi.ID).Warn("payment intent without spar metadata, ignoring")
			break
		}
		err := h.payments.RecordPayment(c.UserContext(), sparID, role, pi.ID)
		if errors.Is(err, errs.ErrNotFound) {
			// Stripe retries non-2xx replies; an unknown spar will never appear.
			h.log.WithFields(logrus.Fields{"spar_id": sparID, "payment_intent": pi.ID}).Warn("payment for unknown spar, ignoring")
			break
		}
		if err != nil {
			return respondError(c, h.log, err)
		}
		h.log.WithFields(logrus.Fields{"spar_id": sparID, "role": role, "payment_intent": pi.ID}).Info("✅ spar payment succeeded")

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err == nil {
			h.log.WithFields(logrus.Fields{"spar_id": pi.Metadata["spar_id"], "payment_intent": pi.ID}).Warn("spar payment failed")
		}

	default:
		h.log.WithField("type", event.Type).Debug("unhandled stripe event")
	}

	return c.JSON(fiber.Map{"received": true})
}
