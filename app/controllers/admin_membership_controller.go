package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/enforcement"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/membership"
)

func (ac *AdminController) HandleMembershipShow(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}
	m, err := ac.memberships.Get(c.UserContext(), userID)
	if errors.Is(err, membership.ErrNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "No membership for this user")
	}
	if err != nil {
		log.Errorf("[API] Membership lookup for %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Membership lookup failed")
	}
	return c.JSON(fiber.Map{
		"membership": m,
		"has_access": m.HasAccess(),
		"expires_at": formatTimePtr(m.ExpiresAt),
	})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (ac *AdminController) HandleMembershipRevoke(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}
	var req revokeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Body must be JSON")
		}
	}

	m, err := ac.memberships.Revoke(c.UserContext(), userID, req.Reason)
	if errors.Is(err, membership.ErrNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "No membership for this user")
	}
	if err != nil {
		log.Errorf("[API] Revoke for %d failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Revoke failed")
	}
	return c.JSON(fiber.Map{"membership": m})
}

func (ac *AdminController) HandleMembershipStats(c *fiber.Ctx) error {
	counts, err := ac.memberships.Stats(c.UserContext())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stats unavailable")
	}
	return c.JSON(fiber.Map{"by_status": counts})
}

// HandleEnforcementRun runs a cycle synchronously. ?kind=reminders runs the
// reminder sweep instead.
func (ac *AdminController) HandleEnforcementRun(c *fiber.Ctx) error {
	now := time.Now().UTC()
	var (
		summary enforcement.Summary
		err     error
	)
	switch c.Query("kind", "full") {
	case "full":
		summary, err = ac.engine.RunCycle(c.UserContext(), now)
	case "reminders":
		summary, err = ac.engine.RunReminderSweep(c.UserContext(), now)
	default:
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "kind must be full or reminders")
	}
	if err != nil {
		log.Errorf("[API] Enforcement run failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_server_error",
			"message": err.Error(),
			"summary": summary,
		})
	}
	return c.JSON(summary)
}
