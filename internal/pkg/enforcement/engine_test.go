package enforcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/database/testdb"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/events"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway/gatewaytest"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/membership"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging/messagingtest"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fixture struct {
	db       *gorm.DB
	engine   *Engine
	gw       *gatewaytest.Recorder
	notifier *messagingtest.Notifier
	settings *models.AppSettings
}

func newFixture(t *testing.T, destinations ...int64) *fixture {
	t.Helper()
	if len(destinations) == 0 {
		destinations = []int64{-100}
	}
	db := testdb.New(t)
	gw := gatewaytest.NewRecorder()
	notifier := &messagingtest.Notifier{}
	engine := NewEngine(db, membership.NewAccess(gw, destinations), membership.Announcer{
		Notifier:  notifier,
		Publisher: &events.NoopPublisher{},
	})
	settings := models.DefaultAppSettings()
	engine.settings = func() *models.AppSettings { return settings }
	return &fixture{db: db, engine: engine, gw: gw, notifier: notifier, settings: settings}
}

func (f *fixture) seed(t *testing.T, m models.Membership) {
	t.Helper()
	require.NoError(t, f.db.Create(&m).Error)
}

func (f *fixture) get(t *testing.T, userID int64) models.Membership {
	t.Helper()
	var m models.Membership
	require.NoError(t, f.db.Where("user_id = ?", userID).First(&m).Error)
	return m
}

func at(d time.Duration) *time.Time {
	ts := t0.Add(d)
	return &ts
}

func monthly(userID int64, expires *time.Time) models.Membership {
	return models.Membership{
		UserID:          userID,
		PlanKind:        models.PlanMonthly,
		Status:          models.MembershipStatusActive,
		ExpiresAt:       expires,
		SourcePaymentID: "p1",
	}
}

func TestRunCycleExpiresPastGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, monthly(1, at(30*day)))

	summary, err := f.engine.RunCycle(ctx, t0.Add(31*day))
	require.NoError(t, err)
	assert.Equal(t, Summary{Evaluated: 1, Transitioned: 1, Revoked: 1}, summary)

	m := f.get(t, 1)
	assert.Equal(t, models.MembershipStatusExpired, m.Status)
	assert.False(t, m.AccessDirty)
	calls := f.gw.CallsFor(gateway.ActionRevoke, 1)
	require.Len(t, calls, 1)
	assert.Equal(t, int64(-100), calls[0].DestinationID)
	assert.Len(t, f.notifier.ByTemplate(messaging.TemplateExpired), 1)

	again, err := f.engine.RunCycle(ctx, t0.Add(32*day))
	require.NoError(t, err)
	assert.Equal(t, Summary{}, again)
	assert.Len(t, f.gw.Calls(), 1)
}

func TestRunCycleTwiceAtSameInstantIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, monthly(1, at(2*day)))
	f.seed(t, monthly(2, at(3*day-time.Hour)))
	f.seed(t, monthly(3, at(-6*time.Hour)))
	f.seed(t, monthly(4, at(-2*day)))
	f.seed(t, monthly(5, at(20*day)))

	first, err := f.engine.RunCycle(ctx, t0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first.RemindersSent, 2)
	assert.Equal(t, 2, first.Transitioned)
	calls := len(f.gw.Calls())
	sent := len(f.notifier.Sent())
	statuses := make(map[int64]string)
	for id := int64(1); id <= 5; id++ {
		statuses[id] = f.get(t, id).Status
	}

	again, err := f.engine.RunCycle(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, again.Transitioned)
	assert.Zero(t, again.Granted)
	assert.Zero(t, again.Revoked)
	assert.Zero(t, again.RemindersSent)
	assert.Zero(t, again.Errors)
	assert.Len(t, f.gw.Calls(), calls)
	assert.Len(t, f.notifier.Sent(), sent)
	for id, status := range statuses {
		assert.Equal(t, status, f.get(t, id).Status, "user %d", id)
	}
}

func TestRunCycleGraceBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, monthly(1, at(0)))
	f.seed(t, monthly(2, at(0)))

	summary, err := f.engine.RunCycle(ctx, t0.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Transitioned)
	assert.Equal(t, 2, summary.Granted)
	assert.Equal(t, models.MembershipStatusGrace, f.get(t, 1).Status)
	assert.NotNil(t, f.get(t, 1).LastReminderSentAt, "entering grace counts as a reminder")
	assert.Len(t, f.notifier.ByTemplate(messaging.TemplateGrace), 2)

	summary, err = f.engine.RunCycle(ctx, t0.Add(12*time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Transitioned)
	assert.Equal(t, 2, summary.Revoked)
	assert.Equal(t, models.MembershipStatusExpired, f.get(t, 2).Status)
}

func TestRunCycleNeverMovesTerminalOrLifetime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, models.Membership{UserID: 1, PlanKind: models.PlanLifetime, Status: models.MembershipStatusActive})
	f.seed(t, models.Membership{UserID: 2, PlanKind: models.PlanMonthly, Status: models.MembershipStatusRevoked, ExpiresAt: at(day)})
	f.seed(t, models.Membership{UserID: 3, Status: models.MembershipStatusPending})

	summary, err := f.engine.RunCycle(ctx, t0.Add(400*day))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Evaluated)
	assert.Equal(t, 0, summary.Transitioned)
	assert.Empty(t, f.gw.Calls())
	assert.Equal(t, models.MembershipStatusActive, f.get(t, 1).Status)
	assert.Equal(t, models.MembershipStatusRevoked, f.get(t, 2).Status)
	assert.Equal(t, models.MembershipStatusPending, f.get(t, 3).Status)
}

func TestRunCycleRetriesDirtyAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, monthly(1, at(0)))
	f.gw.Fail(1, gateway.Transient(errors.New("telegram down")))

	summary, err := f.engine.RunCycle(ctx, t0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Transitioned)
	assert.Equal(t, 0, summary.Revoked)

	m := f.get(t, 1)
	assert.Equal(t, models.MembershipStatusExpired, m.Status, "state is committed even when the gateway fails")
	assert.True(t, m.AccessDirty)

	f.gw.Heal(1)
	f.gw.Reset()
	summary, err = f.engine.RunCycle(ctx, t0.Add(3*day))
	require.NoError(t, err)
	assert.Equal(t, Summary{Evaluated: 1, Revoked: 1}, summary)
	assert.Len(t, f.gw.CallsFor(gateway.ActionRevoke, 1), 1)
	assert.False(t, f.get(t, 1).AccessDirty)
	assert.Len(t, f.notifier.ByTemplate(messaging.TemplateExpired), 1, "retry does not notify again")
}

func TestRunCycleIsolatesFailingRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, monthly(1, at(0)))
	f.seed(t, monthly(2, at(0)))
	f.seed(t, monthly(3, at(0)))
	f.gw.Fail(2, gateway.Transient(errors.New("timeout")))

	summary, err := f.engine.RunCycle(ctx, t0.Add(5*day))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Evaluated)
	assert.Equal(t, 2, summary.Revoked)
	assert.Equal(t, 1, summary.Errors)
	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, models.MembershipStatusExpired, f.get(t, id).Status)
	}
}

func TestRunCycleAllDestinations(t *testing.T) {
	f := newFixture(t, -100, -200, -300)
	f.seed(t, monthly(1, at(0)))

	summary, err := f.engine.RunCycle(context.Background(), t0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Revoked)
	assert.Len(t, f.gw.CallsFor(gateway.ActionRevoke, 1), 3)
}

func TestRunCycleBatches(t *testing.T) {
	f := newFixture(t)
	f.settings.EnforcementBatchSize = 2
	for id := int64(1); id <= 5; id++ {
		f.seed(t, monthly(id, at(0)))
	}

	summary, err := f.engine.RunCycle(context.Background(), t0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Evaluated)
	assert.Equal(t, 5, summary.Revoked)
}

func TestRunCycleReminderCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, monthly(1, at(2*day)))
	f.seed(t, monthly(2, at(20*day)))

	summary, err := f.engine.RunCycle(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RemindersSent)
	assert.Equal(t, 0, summary.Transitioned)
	assert.Empty(t, f.gw.Calls(), "reminders do not touch access")
	require.NotNil(t, f.get(t, 1).LastReminderSentAt)
	assert.Nil(t, f.get(t, 2).LastReminderSentAt)

	summary, err = f.engine.RunCycle(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.RemindersSent)

	summary, err = f.engine.RunCycle(ctx, t0.Add(day))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RemindersSent)
	assert.Len(t, f.notifier.ByTemplate(messaging.TemplateReminder), 2)
}

func TestRunReminderSweepOnlyTouchesWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, monthly(1, at(2*day)))
	f.seed(t, monthly(2, at(20*day)))
	dirty := monthly(3, at(-30*day))
	dirty.Status = models.MembershipStatusExpired
	dirty.AccessDirty = true
	f.seed(t, dirty)

	summary, err := f.engine.RunReminderSweep(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, Summary{Evaluated: 1, RemindersSent: 1}, summary)
	assert.True(t, f.get(t, 3).AccessDirty, "sweep leaves dirty rows to the full cycle")
}

func TestRunCycleStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monthly(1, at(0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.RunCycle(ctx, t0.Add(2*day))
	assert.Error(t, err)
	assert.Equal(t, models.MembershipStatusActive, f.get(t, 1).Status)
}
