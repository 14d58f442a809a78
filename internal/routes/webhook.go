package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pixa-pay/pixa_pay/internal/deposit"
)

// RegisterWebhookRoutes wires the provider notification endpoint.
func RegisterWebhookRoutes(r fiber.Router, h *deposit.Handler) {
	r.Post("/webhooks/provider", h.Webhook)
}
