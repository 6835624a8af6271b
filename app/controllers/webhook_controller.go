package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/billing"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
)

// WebhookController receives payment provider callbacks.
type WebhookController struct {
	payments  *billing.Service
	notifier  messaging.Notifier
	adminIDs  []int64
	ping      func(ctx context.Context) error
	startedAt time.Time
	now       func() time.Time
}

type WebhookOptions struct {
	Notifier messaging.Notifier
	AdminIDs []int64
	// Ping checks the backing stores for the health endpoint.
	Ping func(ctx context.Context) error
}

func NewWebhookController(payments *billing.Service, opts WebhookOptions) *WebhookController {
	if opts.Notifier == nil {
		opts.Notifier = messaging.NopNotifier{}
	}
	now := func() time.Time { return time.Now().UTC() }
	return &WebhookController{
		payments:  payments,
		notifier:  opts.Notifier,
		adminIDs:  opts.AdminIDs,
		ping:      opts.Ping,
		startedAt: now(),
		now:       now,
	}
}

// HandlePayment processes one provider event. Duplicates answer 200 with the
// recorded result so the provider stops retrying.
func (wc *WebhookController) HandlePayment(c *fiber.Ctx) error {
	in, process, err := billing.ParseWebhook(c.Body(), wc.now())
	if err != nil {
		return wc.handleError(c, err)
	}
	if !process {
		log.Infof("[Webhook] Payment %s for user %d still pending, ignored", in.PaymentID, in.UserID)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status":     "ignored",
			"payment_id": in.PaymentID,
		})
	}

	res, err := wc.payments.Handle(c.UserContext(), in)
	if err != nil {
		return wc.handleError(c, err)
	}
	status := fiber.StatusOK
	if res.Outcome == billing.OutcomeRejected {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(res)
}

func (wc *WebhookController) handleError(c *fiber.Ctx, err error) error {
	var verr *billing.ValidationError
	if errors.As(err, &verr) {
		return jsonError(c, fiber.StatusBadRequest, "invalid_payload", verr.Error())
	}
	log.Errorf("[Webhook] Payment processing failed: %v", err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Payment could not be processed")
}

// HandlePaymentTest parses a sample body without touching the ledger and
// forwards it to the admins.
func (wc *WebhookController) HandlePaymentTest(c *fiber.Ctx) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(c.Body(), &raw); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_payload", "Body must be a JSON object")
	}

	resp := fiber.Map{
		"status":        "test_received",
		"received_data": raw,
		"timestamp":     wc.now().Format(time.RFC3339),
	}
	in, process, err := billing.ParseWebhook(c.Body(), wc.now())
	if err != nil {
		resp["valid"] = false
		resp["error"] = err.Error()
	} else {
		resp["valid"] = true
		resp["would_process"] = process
		resp["parsed"] = fiber.Map{
			"payment_id": in.PaymentID,
			"user_id":    in.UserID,
			"plan":       in.PlanKind,
			"amount":     in.Amount,
			"currency":   in.Currency,
			"status":     in.ProviderStatus,
		}
	}

	for _, adminID := range wc.adminIDs {
		n := messaging.Notification{
			UserID:   adminID,
			Template: messaging.TemplateAdminPaymentAlert,
			Data: map[string]string{
				"payment_id": in.PaymentID,
				"user_id":    strconv.FormatInt(in.UserID, 10),
				"plan":       in.PlanKind,
				"amount":     strconv.FormatFloat(in.Amount, 'f', 2, 64),
				"currency":   in.Currency,
				"outcome":    "test",
			},
		}
		if err := wc.notifier.Notify(c.UserContext(), n); err != nil {
			log.Warnf("[Webhook] Test notification for admin %d failed: %v", adminID, err)
		}
	}
	return c.JSON(resp)
}

// HandlePaymentStats reports ledger counts for ?from=&to= (default: last 30 days).
func (wc *WebhookController) HandlePaymentStats(c *fiber.Ctx) error {
	now := wc.now()
	to, err := parseTimeParam(c.Query("to"), now)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "to must be RFC 3339 or YYYY-MM-DD")
	}
	from, err := parseTimeParam(c.Query("from"), to.AddDate(0, 0, -30))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "from must be RFC 3339 or YYYY-MM-DD")
	}
	if !from.Before(to) {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "from must be before to")
	}

	stats, err := wc.payments.Stats(c.UserContext(), from, to)
	if err != nil {
		log.Errorf("[Webhook] Stats query failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Stats unavailable")
	}
	return c.JSON(stats)
}

func (wc *WebhookController) HandleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":         "healthy",
		"service":        "payment-webhook",
		"uptime_seconds": int64(wc.now().Sub(wc.startedAt).Seconds()),
		"timestamp":      wc.now().Format(time.RFC3339),
	}
	if wc.ping != nil {
		if err := wc.ping(c.UserContext()); err != nil {
			resp["status"] = "unhealthy"
			resp["error"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
	}
	return c.JSON(resp)
}
