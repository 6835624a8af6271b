// Package events publishes domain events for other services (analytics, the
// bot front end) to consume.
package events

import (
	"context"
	"time"
)

const (
	TopicMembershipTransitioned = "channelpass.membership.transitioned"
	TopicPaymentProcessed       = "channelpass.payment.processed"
	TopicBroadcastFinished      = "channelpass.broadcast.finished"
)

// Publisher is implemented by NATSPublisher and NoopPublisher.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

type MembershipTransitioned struct {
	UserID    int64      `json:"user_id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	At        time.Time  `json:"at"`
}

type PaymentProcessed struct {
	PaymentID string     `json:"payment_id"`
	UserID    int64      `json:"user_id"`
	PlanKind  string     `json:"plan_kind"`
	Amount    float64    `json:"amount"`
	Outcome   string     `json:"outcome"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	At        time.Time  `json:"at"`
}

type BroadcastFinished struct {
	JobID  string    `json:"job_id"`
	Status string    `json:"status"`
	Sent   int       `json:"sent"`
	Failed int       `json:"failed"`
	At     time.Time `json:"at"`
}
