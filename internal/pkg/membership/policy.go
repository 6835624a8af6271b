package membership

import (
	"time"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// Policy holds the operational windows used by Evaluate.
type Policy struct {
	GracePeriod      time.Duration
	ReminderWindow   time.Duration
	ReminderCooldown time.Duration
}

// DefaultPolicy: 12h grace, reminders from 3 days before expiry, at most once a day.
func DefaultPolicy() Policy {
	return Policy{
		GracePeriod:      12 * time.Hour,
		ReminderWindow:   72 * time.Hour,
		ReminderCooldown: 24 * time.Hour,
	}
}

// PolicyFromSettings builds the policy from the runtime settings.
func PolicyFromSettings(s *models.AppSettings) Policy {
	if s == nil {
		return DefaultPolicy()
	}
	return Policy{
		GracePeriod:      s.GracePeriod(),
		ReminderWindow:   s.ReminderWindow(),
		ReminderCooldown: s.ReminderCooldown(),
	}
}
