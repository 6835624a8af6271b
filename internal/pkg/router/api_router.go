package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ChannelPass/app/controllers"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/middleware"
)

type ApiRouter struct {
	admin  *controllers.AdminController
	apiKey string
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	if h.admin == nil {
		return
	}
	v1 := app.Group("/api/v1", middleware.APIKeyAuthMiddleware(h.apiKey))

	v1.Get("/memberships/stats", h.admin.HandleMembershipStats)
	v1.Get("/memberships/:user_id", h.admin.HandleMembershipShow)
	v1.Post("/memberships/:user_id/revoke", h.admin.HandleMembershipRevoke)
	v1.Post("/enforcement/run", h.admin.HandleEnforcementRun)

	v1.Post("/broadcasts", h.admin.HandleBroadcastCreate)
	v1.Get("/broadcasts", h.admin.HandleBroadcastList)
	v1.Get("/broadcasts/:id", h.admin.HandleBroadcastShow)
	v1.Post("/broadcasts/:id/cancel", h.admin.HandleBroadcastCancel)
	v1.Get("/segments/:segment/count", h.admin.HandleSegmentCount)

	v1.Get("/jobs", h.admin.HandleJobList)
	v1.Get("/jobs/:id", h.admin.HandleJobShow)
	v1.Patch("/jobs/:id", h.admin.HandleJobUpdate)
	v1.Post("/jobs/:id/pause", h.admin.HandleJobPause)
	v1.Post("/jobs/:id/resume", h.admin.HandleJobResume)
	v1.Post("/jobs/:id/run", h.admin.HandleJobRun)

	v1.Get("/queue/stats", h.admin.HandleQueueStats)
	v1.Get("/settings", h.admin.HandleSettingsShow)
	v1.Put("/settings", h.admin.HandleSettingsUpdate)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{admin: deps.Admin, apiKey: deps.AdminAPIKey}
}
