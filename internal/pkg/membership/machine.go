package membership

import (
	"time"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// Decision is the result of evaluating one membership at a point in time.
type Decision struct {
	From   string
	To     string
	Remind bool
}

// Changed reports whether the status moves.
func (d Decision) Changed() bool {
	return d.From != d.To
}

// Activate applies a confirmed payment. It returns the membership unchanged
// and false when paymentID already activated it. Renewals extend from the
// later of now and the current expiry; lifetime memberships stay lifetime.
func Activate(m models.Membership, plan string, duration time.Duration, paymentID string, now time.Time) (models.Membership, bool) {
	if paymentID != "" && m.SourcePaymentID == paymentID {
		return m, false
	}

	next := m
	next.Status = models.MembershipStatusActive
	next.SourcePaymentID = paymentID
	next.RevokeReason = ""
	next.LastReminderSentAt = nil

	if plan == models.PlanLifetime || m.IsLifetime() {
		next.PlanKind = models.PlanLifetime
		next.ExpiresAt = nil
		return next, true
	}

	base := now
	if m.ExpiresAt != nil && m.ExpiresAt.After(now) {
		base = *m.ExpiresAt
	}
	expires := base.Add(duration)
	next.PlanKind = plan
	next.ExpiresAt = &expires
	return next, true
}

// Evaluate decides the status m should have at now. It never moves lifetime,
// pending or terminal memberships.
func Evaluate(m models.Membership, now time.Time, p Policy) Decision {
	d := Decision{From: m.Status, To: m.Status}
	if m.IsLifetime() {
		return d
	}

	switch m.Status {
	case models.MembershipStatusActive:
		if m.ExpiresAt == nil {
			d.To = models.MembershipStatusExpired
			return d
		}
		if now.After(*m.ExpiresAt) {
			if now.Sub(*m.ExpiresAt) <= p.GracePeriod {
				d.To = models.MembershipStatusGrace
			} else {
				d.To = models.MembershipStatusExpired
			}
			return d
		}
		if m.ExpiresAt.Sub(now) <= p.ReminderWindow {
			d.Remind = reminderDue(m, now, p)
		}
	case models.MembershipStatusGrace:
		if m.ExpiresAt == nil || now.Sub(*m.ExpiresAt) > p.GracePeriod {
			d.To = models.MembershipStatusExpired
			return d
		}
		d.Remind = reminderDue(m, now, p)
	}
	return d
}

func reminderDue(m models.Membership, now time.Time, p Policy) bool {
	return m.LastReminderSentAt == nil || now.Sub(*m.LastReminderSentAt) >= p.ReminderCooldown
}

// Transition applies d to m. Entering grace counts as a reminder.
func Transition(m models.Membership, d Decision, now time.Time) models.Membership {
	next := m
	next.Status = d.To
	if d.Remind || (d.Changed() && d.To == models.MembershipStatusGrace) {
		stamp := now
		next.LastReminderSentAt = &stamp
	}
	return next
}

// Revoke moves m to revoked. It is always allowed.
func Revoke(m models.Membership, reason string) models.Membership {
	next := m
	next.Status = models.MembershipStatusRevoked
	next.RevokeReason = reason
	return next
}
