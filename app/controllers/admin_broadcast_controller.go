package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/broadcast"
)

type broadcastRequest struct {
	Segment string `json:"segment"`
	Locale  string `json:"locale"`
	models.BroadcastPayload
}

func (ac *AdminController) HandleBroadcastCreate(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Body must be JSON")
	}

	job, err := ac.broadcasts.Enqueue(c.UserContext(), req.Segment, req.Locale, req.BroadcastPayload)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.Is(err, broadcast.ErrInvalidSegment) || errors.As(err, &verrs) {
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
		}
		log.Errorf("[API] Broadcast enqueue failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Broadcast could not be queued")
	}

	resp := fiber.Map{"job": job}
	if n, err := ac.broadcasts.SegmentCount(c.UserContext(), job.Segment, job.LocaleFilter); err == nil {
		resp["estimated_recipients"] = n
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (ac *AdminController) HandleBroadcastList(c *fiber.Ctx) error {
	jobs, err := ac.broadcasts.List(c.UserContext(), c.Query("status"), c.QueryInt("limit", 50))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Listing failed")
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

func (ac *AdminController) HandleBroadcastShow(c *fiber.Ctx) error {
	job, err := ac.broadcasts.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, broadcast.ErrNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Broadcast not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lookup failed")
	}
	failures, err := ac.broadcasts.Failures(c.UserContext(), job.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lookup failed")
	}
	return c.JSON(fiber.Map{"job": job, "failures": failures})
}

func (ac *AdminController) HandleBroadcastCancel(c *fiber.Ctx) error {
	job, err := ac.broadcasts.Cancel(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, broadcast.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Broadcast not found")
	case errors.Is(err, broadcast.ErrFinished):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "conflict",
			"message": "Broadcast already finished",
			"job":     job,
		})
	case err != nil:
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Cancel failed")
	}
	return c.JSON(fiber.Map{"job": job})
}

func (ac *AdminController) HandleSegmentCount(c *fiber.Ctx) error {
	segment := c.Params("segment")
	locale := c.Query("locale")
	n, err := ac.broadcasts.SegmentCount(c.UserContext(), segment, locale)
	if errors.Is(err, broadcast.ErrInvalidSegment) {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Count failed")
	}
	return c.JSON(fiber.Map{"segment": segment, "locale": locale, "count": n})
}
