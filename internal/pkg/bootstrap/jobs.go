package bootstrap

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/scheduler"
)

const (
	JobMembershipEnforcement = "membership_enforcement"
	JobMembershipReminders   = "membership_reminders"
	JobBroadcastDrain        = "broadcast_drain"
	JobBroadcastCleanup      = "broadcast_cleanup"
	JobSegmentCacheClear     = "segment_cache_clear"
	JobSettingsReload        = "settings_reload"
	JobLedgerArchive         = "ledger_archive"
)

// drainBudget bounds one broadcast_drain run so a long broadcast does not
// hold the lease for the whole job.
const drainBudget = time.Minute

// Jobs returns the recurring jobs of this process. Triggers are defaults;
// a trigger changed through the admin API survives restarts.
func (c *Container) Jobs() []scheduler.Job {
	jobs := []scheduler.Job{
		{
			ID:      JobMembershipEnforcement,
			Name:    "Daily membership enforcement",
			Trigger: scheduler.Cron("0 9 * * *"),
			Handler: func(ctx context.Context) error {
				summary, err := c.Engine.RunCycle(ctx, time.Now().UTC())
				log.Infof("[Jobs] Enforcement: %+v", summary)
				return err
			},
		},
		{
			ID:      JobMembershipReminders,
			Name:    "Hourly reminder sweep",
			Trigger: scheduler.Every(time.Hour),
			Handler: func(ctx context.Context) error {
				summary, err := c.Engine.RunReminderSweep(ctx, time.Now().UTC())
				if summary.RemindersSent > 0 || summary.Transitioned > 0 {
					log.Infof("[Jobs] Reminder sweep: %+v", summary)
				}
				return err
			},
		},
		{
			ID:           JobBroadcastDrain,
			Name:         "Broadcast drain",
			Trigger:      scheduler.Every(5 * time.Second),
			MisfireGrace: 30 * time.Second,
			Handler:      c.drainBroadcasts,
		},
		{
			ID:      JobBroadcastCleanup,
			Name:    "Broadcast cleanup",
			Trigger: scheduler.Cron("0 2 * * *"),
			Handler: func(ctx context.Context) error {
				retention := time.Duration(c.Config.Broadcast.RetentionDays) * 24 * time.Hour
				n, err := c.Broadcasts.Cleanup(ctx, retention)
				if n > 0 {
					log.Infof("[Jobs] Removed %d finished broadcasts", n)
				}
				return err
			},
		},
		{
			ID:      JobSegmentCacheClear,
			Name:    "Segment count cache clear",
			Trigger: scheduler.Every(time.Hour),
			Handler: func(ctx context.Context) error {
				_, err := c.Broadcasts.ClearSegmentCache(ctx)
				return err
			},
		},
		{
			ID:      JobSettingsReload,
			Name:    "Runtime settings reload",
			Trigger: scheduler.Every(time.Minute),
			Handler: func(ctx context.Context) error {
				return models.LoadSettings(c.DB.WithContext(ctx), models.GetAppSettings().Clone())
			},
		},
	}

	if c.Archive != nil {
		jobs = append(jobs, scheduler.Job{
			ID:           JobLedgerArchive,
			Name:         "Weekly ledger archive",
			Trigger:      scheduler.Cron("0 3 * * 0"),
			MisfireGrace: time.Hour,
			Handler: func(ctx context.Context) error {
				res, err := c.Archive.Run(ctx)
				log.Infof("[Jobs] Ledger archive: %d events in %d objects, cursor %d", res.Events, len(res.Objects), res.Cursor)
				return err
			},
		})
	}
	return jobs
}

// RegisterJobs registers every job with the scheduler.
func (c *Container) RegisterJobs(ctx context.Context) error {
	for _, job := range c.Jobs() {
		if err := c.Scheduler.Register(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// drainBroadcasts works through queued broadcasts until none is left, the
// budget runs out or a job stops making progress (throttled).
func (c *Container) drainBroadcasts(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, drainBudget)
	defer cancel()

	var lastID string
	var lastCursor uint
	for {
		job, err := c.Broadcasts.DrainTick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if job == nil {
			return nil
		}
		if job.Status == models.BroadcastStatusRunning && job.ID == lastID && job.Cursor == lastCursor {
			return nil
		}
		lastID, lastCursor = job.ID, job.Cursor
	}
}
