package membership

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/events"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/metrics"
)

// Announcer emits the side effects of a committed membership change:
// metrics, the user notification and the domain event.
type Announcer struct {
	Notifier  messaging.Notifier
	Publisher events.Publisher
}

// NotificationFor returns the message a user gets for the change from
// before to after, if any.
func NotificationFor(before, after models.Membership, remind bool, now time.Time) (messaging.Notification, bool) {
	n := messaging.Notification{UserID: after.UserID, Data: map[string]string{}}
	if after.ExpiresAt != nil {
		n.Data["expires_at"] = after.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC")
		days := int(after.ExpiresAt.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		n.Data["days_left"] = strconv.Itoa(days)
	}
	n.Data["plan"] = after.PlanKind

	if before.Status != after.Status {
		switch after.Status {
		case models.MembershipStatusActive:
			n.Template = messaging.TemplateActivated
		case models.MembershipStatusGrace:
			n.Template = messaging.TemplateGrace
		case models.MembershipStatusExpired:
			n.Template = messaging.TemplateExpired
		case models.MembershipStatusRevoked:
			n.Template = messaging.TemplateRevoked
		default:
			return n, false
		}
		return n, true
	}
	if remind {
		n.Template = messaging.TemplateReminder
		return n, true
	}
	return n, false
}

// Announce reports whether a notification was handed to the notifier.
func (a Announcer) Announce(ctx context.Context, before, after models.Membership, remind bool, now time.Time) bool {
	if before.Status != after.Status {
		metrics.MembershipTransitions.WithLabelValues(before.Status, after.Status).Inc()
		if a.Publisher != nil {
			ev := events.MembershipTransitioned{
				UserID:    after.UserID,
				From:      before.Status,
				To:        after.Status,
				ExpiresAt: after.ExpiresAt,
				Reason:    after.RevokeReason,
				At:        now,
			}
			if err := a.Publisher.Publish(ctx, events.TopicMembershipTransitioned, ev); err != nil {
				log.Warnf("[Membership] publish transition for user %d failed: %v", after.UserID, err)
			}
		}
	}

	n, ok := NotificationFor(before, after, remind, now)
	if !ok || a.Notifier == nil {
		return false
	}
	if err := a.Notifier.Notify(ctx, n); err != nil {
		log.Errorf("[Membership] enqueue %s for user %d failed: %v", n.Template, after.UserID, err)
		return false
	}
	return true
}
