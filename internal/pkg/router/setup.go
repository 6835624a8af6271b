package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ChannelPass/app/controllers"
)

// Router installs a group of routes.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries the controllers and settings the routers need.
type Deps struct {
	Webhooks    *controllers.WebhookController
	Admin       *controllers.AdminController
	AdminAPIKey string
	// LimiterStorage shares rate limit counters between instances. Nil keeps
	// them in memory.
	LimiterStorage   fiber.Storage
	WebhookRateLimit int
}

func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewOpsRouter(), NewWebhookRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
