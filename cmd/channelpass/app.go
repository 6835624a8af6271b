package main

import (
	"errors"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ChannelPass/app/controllers"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/bootstrap"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/router"
)

const openAPIFile = "public/docs/v1/openapi.yml"

// NewApplication builds the fiber app around the wired services.
func NewApplication(c *bootstrap.Container) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "ChannelPass",
		BodyLimit:    1 << 20,
		ErrorHandler: jsonErrorHandler,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if path := findOpenAPIFile(); path != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: path,
			Path:     "v1",
		}))
	} else {
		log.Printf("OpenAPI file %s not found, docs disabled", openAPIFile)
	}

	// Rate limit counters live in Redis database 1 so every instance shares them
	// (cache uses DB 0).
	limiterStorage := redisstorage.New(redisstorage.Config{
		Host:     c.Config.Cache.Host,
		Port:     c.Config.Cache.Port,
		Password: c.Config.Cache.Password,
		Database: 1,
		Reset:    false,
	})

	router.InstallRouter(app, router.Deps{
		Webhooks: controllers.NewWebhookController(c.Payments, controllers.WebhookOptions{
			Notifier: c.Queue,
			AdminIDs: c.Config.Telegram.AdminIDs,
			Ping:     c.Ping,
		}),
		Admin: controllers.NewAdminController(controllers.AdminDeps{
			Memberships: c.Memberships,
			Engine:      c.Engine,
			Broadcasts:  c.Broadcasts,
			Scheduler:   c.Scheduler,
			Queue:       c.Queue,
			Repos:       c.Repos,
		}),
		AdminAPIKey:    c.Config.AdminAPIKey,
		LimiterStorage: limiterStorage,
	})

	return app
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   "request_failed",
		"message": err.Error(),
	})
}

func findOpenAPIFile() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/channelpass to project root
		"../../../", // Fallback
	}
	for _, base := range basePaths {
		if _, err := os.Stat(base + openAPIFile); err == nil {
			return base + openAPIFile
		}
	}
	return ""
}
