package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/archive"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/broadcast"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/config"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/database/testdb"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/enforcement"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway/gatewaytest"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/membership"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging/messagingtest"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/scheduler"
)

type nopUploader struct{}

func (nopUploader) Upload(context.Context, string, []byte, string) error { return nil }

func newTestContainer(t *testing.T, sender *messagingtest.BroadcastSender) *Container {
	t.Helper()
	db := testdb.New(t)
	cfg, err := config.Parse(map[string]string{})
	require.NoError(t, err)

	access := membership.NewAccess(gatewaytest.NewRecorder(), []int64{-100})
	announcer := membership.Announcer{Notifier: &messagingtest.Notifier{}}
	return &Container{
		Config:     cfg,
		DB:         db,
		Engine:     enforcement.NewEngine(db, access, announcer),
		Broadcasts: broadcast.NewDispatcher(db, broadcast.Options{Sender: sender}),
		Scheduler:  scheduler.New(db, scheduler.Options{InstanceID: "test"}),
	}
}

func jobIDs(jobs []scheduler.Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

func TestJobs_ArchiveOnlyWhenEnabled(t *testing.T) {
	c := newTestContainer(t, &messagingtest.BroadcastSender{})
	assert.NotContains(t, jobIDs(c.Jobs()), JobLedgerArchive)

	c.Archive = archive.NewExporter(c.DB, nopUploader{}, "ledger")
	ids := jobIDs(c.Jobs())
	assert.Contains(t, ids, JobLedgerArchive)
	assert.Contains(t, ids, JobMembershipEnforcement)
	assert.Contains(t, ids, JobBroadcastDrain)

	for _, j := range c.Jobs() {
		assert.NoError(t, j.Trigger.Validate(), j.ID)
	}
}

func TestRegisterJobs(t *testing.T) {
	c := newTestContainer(t, &messagingtest.BroadcastSender{})
	ctx := context.Background()

	require.NoError(t, c.RegisterJobs(ctx))
	rows, err := c.Scheduler.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, len(c.Jobs()))

	job, err := c.Scheduler.Get(ctx, JobMembershipEnforcement)
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * *", job.CronExpr)
}

func TestDrainBroadcasts_DeliversQueuedJobs(t *testing.T) {
	sender := &messagingtest.BroadcastSender{}
	c := newTestContainer(t, sender)
	ctx := context.Background()
	require.NoError(t, c.DB.Create(&[]models.BotUser{{UserID: 1}, {UserID: 2}, {UserID: 3}}).Error)

	job, err := c.Broadcasts.Enqueue(ctx, models.SegmentAll, "", models.BroadcastPayload{Text: "hi"})
	require.NoError(t, err)

	require.NoError(t, c.drainBroadcasts(ctx))

	got, err := c.Broadcasts.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusCompleted, got.Status)
	assert.ElementsMatch(t, []int64{1, 2, 3}, sender.Delivered())
}

func TestSettingsReloadJob(t *testing.T) {
	c := newTestContainer(t, &messagingtest.BroadcastSender{})
	t.Cleanup(func() { _ = models.SaveSettings(c.DB, models.DefaultAppSettings()) })
	require.NoError(t, c.DB.Create(&models.Setting{Key: models.SettingBroadcastBatchSize, Value: "7", Type: "integer"}).Error)

	for _, j := range c.Jobs() {
		if j.ID == JobSettingsReload {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, j.Handler(ctx))
		}
	}
	assert.Equal(t, 7, models.GetAppSettings().BroadcastBatchSize)
}
