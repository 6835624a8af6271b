// Package messaging defines the outbound message contracts shared by the
// membership engine, the payment processor and the broadcast dispatcher.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// Template identifies a user-facing message.
type Template string

const (
	TemplateReminder          Template = "membership_reminder"
	TemplateGrace             Template = "membership_grace"
	TemplateExpired           Template = "membership_expired"
	TemplateRevoked           Template = "membership_revoked"
	TemplateActivated         Template = "membership_activated"
	TemplatePaymentRejected   Template = "payment_rejected"
	TemplateAdminPaymentAlert Template = "admin_payment_alert"
)

// Notification is a single templated message to one user. An empty Locale is
// resolved by the sender.
type Notification struct {
	UserID   int64             `json:"user_id"`
	Template Template          `json:"template"`
	Locale   string            `json:"locale,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Sender delivers a notification synchronously.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier accepts notifications for asynchronous delivery. Failures after
// acceptance are logged by the implementation and never reported back.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// BroadcastSender sends one broadcast payload to one recipient.
type BroadcastSender interface {
	SendBroadcast(ctx context.Context, userID int64, payload models.BroadcastPayload) error
}

// ErrRecipientUnavailable means the recipient can't be reached, e.g. the user
// blocked the bot. Retrying does not help.
var ErrRecipientUnavailable = errors.New("recipient unavailable")

// ErrPayloadRejected means the platform refused the message itself, so no
// recipient will accept it either.
var ErrPayloadRejected = errors.New("payload rejected")

// ThrottledError is returned when the platform asks the caller to slow down.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled, retry after %s", e.RetryAfter)
}

// IsThrottled reports whether err carries a ThrottledError and returns it.
func IsThrottled(err error) (*ThrottledError, bool) {
	var te *ThrottledError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
