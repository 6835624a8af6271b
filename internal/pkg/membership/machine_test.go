package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func at(t time.Time) *time.Time { return &t }

func TestActivateFromPending(t *testing.T) {
	m := models.Membership{UserID: 1, Status: models.MembershipStatusPending}

	got, applied := Activate(m, models.PlanMonthly, 30*day, "p1", t0)

	assert.True(t, applied)
	assert.Equal(t, models.MembershipStatusActive, got.Status)
	assert.Equal(t, models.PlanMonthly, got.PlanKind)
	assert.Equal(t, "p1", got.SourcePaymentID)
	assert.True(t, got.ExpiresAt.Equal(t0.Add(30*day)))
}

func TestActivateSamePaymentIsNoop(t *testing.T) {
	m := models.Membership{UserID: 1, Status: models.MembershipStatusPending}
	first, _ := Activate(m, models.PlanMonthly, 30*day, "p1", t0)

	second, applied := Activate(first, models.PlanMonthly, 30*day, "p1", t0.Add(time.Hour))

	assert.False(t, applied)
	assert.Equal(t, first, second)
}

func TestActivateRenewalNeverShortens(t *testing.T) {
	m := models.Membership{
		UserID:          1,
		Status:          models.MembershipStatusActive,
		PlanKind:        models.PlanMonthly,
		ExpiresAt:       at(t0.Add(10 * day)),
		SourcePaymentID: "p1",
	}

	got, applied := Activate(m, models.PlanMonthly, 30*day, "p2", t0)

	assert.True(t, applied)
	assert.True(t, got.ExpiresAt.Equal(t0.Add(40*day)), "expected now+10d+30d, got %s", got.ExpiresAt)
}

func TestActivateAfterExpiryStartsFromNow(t *testing.T) {
	m := models.Membership{
		UserID:       1,
		Status:       models.MembershipStatusExpired,
		PlanKind:     models.PlanMonthly,
		ExpiresAt:    at(t0.Add(-5 * day)),
		RevokeReason: "",
	}

	got, applied := Activate(m, models.PlanAnnual, 365*day, "p9", t0)

	assert.True(t, applied)
	assert.Equal(t, models.MembershipStatusActive, got.Status)
	assert.True(t, got.ExpiresAt.Equal(t0.Add(365*day)))
}

func TestActivateLifetime(t *testing.T) {
	m := models.Membership{UserID: 1, Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(day))}

	got, _ := Activate(m, models.PlanLifetime, 0, "life", t0)
	assert.Equal(t, models.PlanLifetime, got.PlanKind)
	assert.Nil(t, got.ExpiresAt)

	again, applied := Activate(got, models.PlanMonthly, 30*day, "p2", t0)
	assert.True(t, applied)
	assert.Equal(t, models.PlanLifetime, again.PlanKind, "timed plan must not downgrade lifetime")
	assert.Nil(t, again.ExpiresAt)
}

func TestActivateClearsRevocation(t *testing.T) {
	m := models.Membership{UserID: 1, Status: models.MembershipStatusRevoked, RevokeReason: "chargeback"}

	got, _ := Activate(m, models.PlanMonthly, 30*day, "p3", t0)
	assert.Equal(t, models.MembershipStatusActive, got.Status)
	assert.Empty(t, got.RevokeReason)
}

func TestEvaluate(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name       string
		m          models.Membership
		now        time.Time
		wantStatus string
		wantRemind bool
	}{
		{
			name:       "active far from expiry",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(20 * day))},
			now:        t0,
			wantStatus: models.MembershipStatusActive,
		},
		{
			name:       "active inside reminder window",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(2 * day))},
			now:        t0,
			wantStatus: models.MembershipStatusActive,
			wantRemind: true,
		},
		{
			name:       "reminder on cooldown",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(2 * day)), LastReminderSentAt: at(t0.Add(-time.Hour))},
			now:        t0,
			wantStatus: models.MembershipStatusActive,
		},
		{
			name:       "reminder after cooldown",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(day)), LastReminderSentAt: at(t0.Add(-25 * time.Hour))},
			now:        t0,
			wantStatus: models.MembershipStatusActive,
			wantRemind: true,
		},
		{
			name:       "just expired enters grace",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(-time.Hour))},
			now:        t0,
			wantStatus: models.MembershipStatusGrace,
		},
		{
			name:       "exactly at grace boundary stays grace",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(-p.GracePeriod))},
			now:        t0,
			wantStatus: models.MembershipStatusGrace,
		},
		{
			name:       "one second past grace expires",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(-p.GracePeriod - time.Second))},
			now:        t0,
			wantStatus: models.MembershipStatusExpired,
		},
		{
			name:       "grace past window expires",
			m:          models.Membership{Status: models.MembershipStatusGrace, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(-p.GracePeriod - time.Second))},
			now:        t0,
			wantStatus: models.MembershipStatusExpired,
		},
		{
			name:       "grace reminds after cooldown",
			m:          models.Membership{Status: models.MembershipStatusGrace, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(-time.Hour)), LastReminderSentAt: at(t0.Add(-2 * day))},
			now:        t0,
			wantStatus: models.MembershipStatusGrace,
			wantRemind: true,
		},
		{
			name:       "lifetime never moves",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanLifetime},
			now:        t0.Add(1000 * day),
			wantStatus: models.MembershipStatusActive,
		},
		{
			name:       "pending is not evaluated",
			m:          models.Membership{Status: models.MembershipStatusPending, ExpiresAt: at(t0.Add(-100 * day))},
			now:        t0,
			wantStatus: models.MembershipStatusPending,
		},
		{
			name:       "expired stays expired",
			m:          models.Membership{Status: models.MembershipStatusExpired, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(-100 * day))},
			now:        t0,
			wantStatus: models.MembershipStatusExpired,
		},
		{
			name:       "revoked stays revoked",
			m:          models.Membership{Status: models.MembershipStatusRevoked, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(10 * day))},
			now:        t0,
			wantStatus: models.MembershipStatusRevoked,
		},
		{
			name:       "active without expiry is expired",
			m:          models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly},
			now:        t0,
			wantStatus: models.MembershipStatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.m, tt.now, p)
			assert.Equal(t, tt.m.Status, d.From)
			assert.Equal(t, tt.wantStatus, d.To)
			assert.Equal(t, tt.wantRemind, d.Remind)
		})
	}
}

func TestEvaluateIsIdempotentAfterTransition(t *testing.T) {
	p := DefaultPolicy()
	m := models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(-time.Hour))}

	d := Evaluate(m, t0, p)
	next := Transition(m, d, t0)
	again := Evaluate(next, t0, p)

	assert.False(t, again.Changed())
	assert.False(t, again.Remind, "entering grace counts as the reminder")
}

func TestTransitionStampsReminder(t *testing.T) {
	m := models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0.Add(day))}
	next := Transition(m, Decision{From: m.Status, To: m.Status, Remind: true}, t0)

	if assert.NotNil(t, next.LastReminderSentAt) {
		assert.True(t, next.LastReminderSentAt.Equal(t0))
	}
	assert.Nil(t, m.LastReminderSentAt, "input must not be mutated")
}

func TestRevoke(t *testing.T) {
	m := models.Membership{Status: models.MembershipStatusActive, PlanKind: models.PlanLifetime}
	got := Revoke(m, "fraud")
	assert.Equal(t, models.MembershipStatusRevoked, got.Status)
	assert.Equal(t, "fraud", got.RevokeReason)
}

func TestPolicyFromSettings(t *testing.T) {
	s := models.DefaultAppSettings()
	s.GracePeriodHours = 6
	p := PolicyFromSettings(s)
	assert.Equal(t, 6*time.Hour, p.GracePeriod)
	assert.Equal(t, 72*time.Hour, p.ReminderWindow)
	assert.Equal(t, DefaultPolicy(), PolicyFromSettings(nil))
}
