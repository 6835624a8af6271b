package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

func (ac *AdminController) HandleSettingsShow(c *fiber.Ctx) error {
	s, err := ac.settings.Get()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Settings unavailable")
	}
	return c.JSON(s.Clone())
}

// HandleSettingsUpdate replaces the runtime settings. Omitted fields keep
// their current value.
func (ac *AdminController) HandleSettingsUpdate(c *fiber.Ctx) error {
	current, err := ac.settings.Get()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Settings unavailable")
	}
	next := current.Clone()
	if err := c.BodyParser(next); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Body must be JSON")
	}

	if err := ac.settings.Save(next); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
		}
		log.Errorf("[API] Saving settings failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Settings could not be saved")
	}
	log.Infof("[API] Settings updated")
	return c.JSON(models.GetAppSettings().Clone())
}

func (ac *AdminController) HandleQueueStats(c *fiber.Ctx) error {
	resp := fiber.Map{}
	if ac.queue != nil {
		stats, err := ac.queue.GetStats(c.UserContext())
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Queue stats unavailable")
		}
		resp["notifications"] = stats
	}
	if ac.botUsers != nil {
		if locales, err := ac.botUsers.CountByLocale(c.UserContext()); err == nil {
			resp["reachable_users_by_locale"] = locales
		}
	}
	return c.JSON(resp)
}
