package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/database/testdb"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway/gatewaytest"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/membership"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging/messagingtest"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	gw       *gatewaytest.Recorder
	notifier *messagingtest.Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.New(t)
	gw := gatewaytest.NewRecorder()
	notifier := &messagingtest.Notifier{}
	svc := NewService(db, Options{
		Catalog:  testCatalog(),
		Access:   membership.NewAccess(gw, []int64{-100}),
		Notifier: notifier,
		AdminIDs: []int64{999},
	})
	svc.now = func() time.Time { return t0 }
	return &fixture{db: db, svc: svc, gw: gw, notifier: notifier}
}

func monthly(paymentID string, userID int64) PaymentInput {
	return PaymentInput{
		PaymentID:      paymentID,
		UserID:         userID,
		PlanKind:       "monthly",
		Amount:         9.99,
		Currency:       "USD",
		ProviderStatus: "completed",
		ReceivedAt:     t0,
	}
}

func (f *fixture) membership(t *testing.T, userID int64) models.Membership {
	t.Helper()
	var m models.Membership
	require.NoError(t, f.db.Where("user_id = ?", userID).First(&m).Error)
	return m
}

func (f *fixture) ledger(t *testing.T, paymentID string) models.PaymentEvent {
	t.Helper()
	var ev models.PaymentEvent
	require.NoError(t, f.db.Where("payment_id = ?", paymentID).First(&ev).Error)
	return ev
}

func TestHandleAppliesAndReplaysAsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Create(&models.Membership{UserID: 1, Status: models.MembershipStatusPending}).Error)

	res, err := f.svc.Handle(ctx, monthly("p1", 1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, res.ExpiresAt.Equal(t0.Add(30*day)))

	m := f.membership(t, 1)
	assert.Equal(t, models.MembershipStatusActive, m.Status)
	assert.True(t, m.ExpiresAt.Equal(t0.Add(30*day)))
	assert.Equal(t, "p1", m.SourcePaymentID)
	assert.Equal(t, models.PaymentStatusApplied, f.ledger(t, "p1").ProcessingStatus)
	assert.Len(t, f.gw.CallsFor(gateway.ActionGrant, 1), 1)

	f.svc.now = func() time.Time { return t0.Add(time.Hour) }
	again, err := f.svc.Handle(ctx, monthly("p1", 1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
	assert.True(t, again.Replayed)
	assert.True(t, again.ExpiresAt.Equal(t0.Add(30*day)))

	unchanged := f.membership(t, 1)
	assert.Equal(t, m.Version, unchanged.Version)
	assert.True(t, unchanged.ExpiresAt.Equal(*m.ExpiresAt))
	assert.Len(t, f.gw.CallsFor(gateway.ActionGrant, 1), 1, "replay must be side-effect free")
}

func TestHandleCreatesMembershipLazily(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Handle(context.Background(), monthly("p1", 7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, models.MembershipStatusActive, f.membership(t, 7).Status)

	var count int64
	require.NoError(t, f.db.Model(&models.Membership{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleRenewalStacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expires := t0.Add(10 * day)
	require.NoError(t, f.db.Create(&models.Membership{UserID: 2, Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: &expires, SourcePaymentID: "old"}).Error)

	res, err := f.svc.Handle(ctx, monthly("p2", 2))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, f.membership(t, 2).ExpiresAt.Equal(t0.Add(40*day)))
	assert.Len(t, f.notifier.ByTemplate(messaging.TemplateActivated), 1)
}

func TestHandleRejectsAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := monthly("p3", 3)
	in.Amount = 5.00
	res, err := f.svc.Handle(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Contains(t, res.Reason, "does not match")

	ev := f.ledger(t, "p3")
	assert.Equal(t, models.PaymentStatusRejected, ev.ProcessingStatus)
	assert.NotEmpty(t, ev.RejectReason)

	var count int64
	require.NoError(t, f.db.Model(&models.Membership{}).Where("user_id = ?", 3).Count(&count).Error)
	assert.Equal(t, int64(0), count, "rejected payments must not touch memberships")
	assert.Empty(t, f.gw.Calls())
	assert.Len(t, f.notifier.ByTemplate(messaging.TemplatePaymentRejected), 1)
	assert.Len(t, f.notifier.ByTemplate(messaging.TemplateAdminPaymentAlert), 1)

	replayed, err := f.svc.Handle(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, replayed.Outcome)
	assert.Equal(t, res.Reason, replayed.Reason)
}

func TestHandleRejectsUnknownPlanAndFailedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unknown := monthly("p4", 4)
	unknown.PlanKind = "platinum"
	res, err := f.svc.Handle(ctx, unknown)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)

	failed := monthly("p5", 4)
	failed.ProviderStatus = "declined"
	res, err = f.svc.Handle(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Contains(t, res.Reason, "declined")
}

func TestHandleInfersPlanFromAmount(t *testing.T) {
	f := newFixture(t)
	in := monthly("p6", 6)
	in.PlanKind = ""
	in.Amount = 99.99

	res, err := f.svc.Handle(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, models.PlanAnnual, res.PlanKind)
	assert.True(t, res.ExpiresAt.Equal(t0.Add(365*day)))
}

func TestHandleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []PaymentInput{
		{UserID: 1, PlanKind: "monthly", Amount: 9.99},
		{PaymentID: "x", PlanKind: "monthly", Amount: 9.99},
		{PaymentID: "y", UserID: 1, PlanKind: "monthly", Amount: -1},
	} {
		_, err := f.svc.Handle(ctx, in)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "expected ValidationError for %+v", in)
	}

	var count int64
	require.NoError(t, f.db.Model(&models.PaymentEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestHandleGrantFailureMarksDirty(t *testing.T) {
	f := newFixture(t)
	f.gw.Fail(8, gateway.Transient(errors.New("timeout")))

	res, err := f.svc.Handle(context.Background(), monthly("p8", 8))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	m := f.membership(t, 8)
	assert.Equal(t, models.MembershipStatusActive, m.Status)
	assert.True(t, m.AccessDirty)
}

// blockingGrant holds every grant until release is closed.
type blockingGrant struct {
	*gatewaytest.Recorder
	granting chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (g *blockingGrant) Grant(ctx context.Context, userID, destinationID int64) error {
	g.once.Do(func() { close(g.granting) })
	<-g.release
	return g.Recorder.Grant(ctx, userID, destinationID)
}

func TestHandleGrantIsOrderedBeforeConcurrentRevoke(t *testing.T) {
	db := testdb.New(t)
	gw := &blockingGrant{Recorder: gatewaytest.NewRecorder(), granting: make(chan struct{}), release: make(chan struct{})}
	access := membership.NewAccess(gw, []int64{-100})
	svc := NewService(db, Options{Catalog: testCatalog(), Access: access, Notifier: &messagingtest.Notifier{}})
	svc.now = func() time.Time { return t0 }
	members := membership.NewService(db, access, membership.Announcer{})
	require.NoError(t, db.Create(&models.Membership{UserID: 4, Status: models.MembershipStatusPending}).Error)

	handled := make(chan error, 1)
	go func() {
		_, err := svc.Handle(context.Background(), monthly("p4", 4))
		handled <- err
	}()
	<-gw.granting

	revoked := make(chan error, 1)
	go func() {
		_, err := members.Revoke(context.Background(), 4, "chargeback")
		revoked <- err
	}()
	time.Sleep(50 * time.Millisecond)
	close(gw.release)

	require.NoError(t, <-handled)
	require.NoError(t, <-revoked)

	calls := gw.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, gateway.ActionGrant, calls[0].Action)
	assert.Equal(t, gateway.ActionRevoke, calls[1].Action, "the revoke lands after the payment grant")

	var m models.Membership
	require.NoError(t, db.Where("user_id = ?", 4).First(&m).Error)
	assert.Equal(t, models.MembershipStatusRevoked, m.Status)
	assert.False(t, m.AccessDirty)
}

func TestHandleConcurrentPaymentsStack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	errs := make([]error, 4)
	inputs := []PaymentInput{monthly("c1", 20), monthly("c2", 20), monthly("c1", 20), monthly("c2", 20)}
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Handle(ctx, inputs[i])
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Outcome == OutcomeApplied {
			applied++
		} else {
			assert.Equal(t, OutcomeDuplicate, results[i].Outcome)
		}
	}
	assert.Equal(t, 2, applied, "each payment id applies exactly once")

	m := f.membership(t, 20)
	assert.True(t, m.ExpiresAt.Equal(t0.Add(60*day)), "two monthly payments stack, got %s", m.ExpiresAt)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, monthly("s1", 30))
	require.NoError(t, err)
	bad := monthly("s2", 31)
	bad.Amount = 1
	_, err = f.svc.Handle(ctx, bad)
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, t0.Add(-day), t0.Add(day))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[models.PaymentStatusApplied])
	assert.Equal(t, int64(1), stats.ByStatus[models.PaymentStatusRejected])
	assert.InDelta(t, 9.99, stats.Revenue, 0.001)
	assert.Equal(t, int64(1), stats.ByPlan[models.PlanMonthly])

	empty, err := f.svc.Stats(ctx, t0.Add(day), t0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Total)
}
