// handlers/webhook_routes.go
package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"devxp-progression-system/services"
)

// SetupWebhookRoutes registers the provider ingestion endpoint. These routes
// are deliberately outside the gateway auth chain: each provider
// authenticates its own deliveries (HMAC signature or basic auth), and the
// response code drives the provider's retry behavior — 2xx means "stop
// retrying", including duplicates and skipped events.
func SetupWebhookRoutes(app *fiber.App, pipeline *services.WebhookPipeline) {
	app.Post("/webhooks/:provider", func(c *fiber.Ctx) error {
		providerKey := c.Params("provider")

		headers := make(map[string]string)
		c.Request().Header.VisitAll(func(key, value []byte) {
			headers[string(key)] = string(value)
		})

		body := make([]byte, len(c.Body()))
		copy(body, c.Body())

		result, err := pipeline.Handle(providerKey, headers, body)
		if err != nil {
			var validationErr *services.ValidationError
			if errors.As(err, &validationErr) {
				log.Printf("🚫 [WEBHOOK] Rejected %s delivery: %s", providerKey, validationErr.Reason)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": validationErr.Reason,
				})
			}
			if errors.Is(err, services.ErrUnsupportedProvider) {
				log.Printf("❌ [WEBHOOK] No adapter registered for %q", providerKey)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "provider not configured",
				})
			}
			log.Printf("❌ [WEBHOOK] %s delivery failed: %v", providerKey, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "webhook processing failed",
			})
		}

		resp := fiber.Map{
			"outcome":  result.Outcome,
			"event_id": result.EventID,
		}
		if result.Reason != "" {
			resp["reason"] = result.Reason
		}
		if result.Action != nil {
			resp["action_id"] = result.Action.ID
			resp["action_type"] = result.Action.Type
			resp["xp_gained"] = result.Action.XPGained
		}
		return c.Status(fiber.StatusOK).JSON(resp)
	})
}
