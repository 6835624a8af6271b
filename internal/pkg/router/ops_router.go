package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OpsRouter serves the Prometheus scrape endpoint and the fiber monitor.
type OpsRouter struct{}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/monitor", monitor.New(monitor.Config{Title: "ChannelPass Monitor"}))
}

func NewOpsRouter() *OpsRouter {
	return &OpsRouter{}
}
