package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ChannelPass/app/controllers"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/middleware"
)

type WebhookRouter struct {
	controller *controllers.WebhookController
	storage    fiber.Storage
	max        int
	apiKey     string
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	if h.controller == nil {
		return
	}
	limit := limiter.New(limiter.Config{
		Max:        h.max,
		Expiration: time.Minute,
		Storage:    h.storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	})

	webhooks := app.Group("/webhooks")
	webhooks.Get("/health", h.controller.HandleHealth)
	webhooks.Post("/payment", limit, h.controller.HandlePayment)

	auth := middleware.APIKeyAuthMiddleware(h.apiKey)
	webhooks.Post("/payment/test", auth, limit, h.controller.HandlePaymentTest)
	webhooks.Get("/payment/stats", auth, h.controller.HandlePaymentStats)
}

func NewWebhookRouter(deps Deps) *WebhookRouter {
	max := deps.WebhookRateLimit
	if max <= 0 {
		max = 120
	}
	return &WebhookRouter{controller: deps.Webhooks, storage: deps.LimiterStorage, max: max, apiKey: deps.AdminAPIKey}
}
