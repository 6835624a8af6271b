package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/scheduler"
)

func (ac *AdminController) jobError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
	case errors.Is(err, scheduler.ErrJobPaused):
		return jsonError(c, fiber.StatusConflict, "conflict", "Job is paused")
	case errors.Is(err, scheduler.ErrInvalidTrigger):
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}
	log.Errorf("[API] Job request failed: %v", err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Job request failed")
}

func (ac *AdminController) HandleJobList(c *fiber.Ctx) error {
	jobs, err := ac.scheduler.List(c.UserContext())
	if err != nil {
		return ac.jobError(c, err)
	}
	return c.JSON(fiber.Map{
		"instance":   ac.scheduler.InstanceID(),
		"registered": ac.scheduler.Registered(),
		"jobs":       jobs,
	})
}

func (ac *AdminController) HandleJobShow(c *fiber.Ctx) error {
	job, err := ac.scheduler.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return ac.jobError(c, err)
	}
	return c.JSON(job)
}

type jobUpdateRequest struct {
	Interval string `json:"interval"`
	Cron     string `json:"cron"`
}

// HandleJobUpdate replaces the trigger: {"interval":"30m"} or {"cron":"0 9 * * *"}.
func (ac *AdminController) HandleJobUpdate(c *fiber.Ctx) error {
	var req jobUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Body must be JSON")
	}

	var t scheduler.Trigger
	switch {
	case req.Interval != "" && req.Cron != "":
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Set either interval or cron")
	case req.Interval != "":
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", "interval must be a duration like 30m")
		}
		t = scheduler.Every(d)
	case req.Cron != "":
		t = scheduler.Cron(req.Cron)
	default:
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Set either interval or cron")
	}

	job, err := ac.scheduler.UpdateTrigger(c.UserContext(), c.Params("id"), t)
	if err != nil {
		return ac.jobError(c, err)
	}
	return c.JSON(job)
}

func (ac *AdminController) HandleJobPause(c *fiber.Ctx) error {
	return ac.jobAction(c, ac.scheduler.Pause)
}

func (ac *AdminController) HandleJobResume(c *fiber.Ctx) error {
	return ac.jobAction(c, ac.scheduler.Resume)
}

// HandleJobRun makes the job due now; the next poll picks it up.
func (ac *AdminController) HandleJobRun(c *fiber.Ctx) error {
	return ac.jobAction(c, ac.scheduler.TriggerNow)
}

func (ac *AdminController) jobAction(c *fiber.Ctx, fn func(ctx context.Context, id string) (*models.ScheduledJob, error)) error {
	job, err := fn(c.UserContext(), c.Params("id"))
	if err != nil {
		return ac.jobError(c, err)
	}
	return c.JSON(job)
}
