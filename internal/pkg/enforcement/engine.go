// Package enforcement runs the periodic membership cycle: it walks every
// non-terminal membership, moves it to the status the state machine decides,
// keeps channel access in line and sends expiry reminders.
package enforcement

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/membership"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/metrics"
)

const (
	kindFull      = "full"
	kindReminders = "reminders"
)

// Summary counts what one cycle did.
type Summary struct {
	Evaluated     int `json:"evaluated"`
	Transitioned  int `json:"transitioned"`
	Granted       int `json:"granted"`
	Revoked       int `json:"revoked"`
	RemindersSent int `json:"reminders_sent"`
	Errors        int `json:"errors"`
}

func (s *Summary) add(o outcome) {
	s.Evaluated++
	if o.transitioned {
		s.Transitioned++
	}
	switch o.action {
	case gateway.ActionGrant:
		s.Granted++
	case gateway.ActionRevoke:
		s.Revoked++
	}
	if o.reminded {
		s.RemindersSent++
	}
}

type outcome struct {
	transitioned bool
	action       gateway.Action
	reminded     bool
}

// Engine evaluates memberships in batches. Each record is handled in its own
// transaction so one failure never blocks the rest of the cycle.
type Engine struct {
	db        *gorm.DB
	access    *membership.Access
	announcer membership.Announcer
	settings  func() *models.AppSettings
}

// NewEngine creates an enforcement engine.
func NewEngine(db *gorm.DB, access *membership.Access, announcer membership.Announcer) *Engine {
	return &Engine{
		db:        db,
		access:    access,
		announcer: announcer,
		settings:  models.GetAppSettings,
	}
}

// RunCycle evaluates every active, grace or access-dirty membership at now.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (Summary, error) {
	return e.run(ctx, kindFull, now, nil)
}

// RunReminderSweep runs the same per-record path for active and grace
// memberships that expire within the reminder window.
func (e *Engine) RunReminderSweep(ctx context.Context, now time.Time) (Summary, error) {
	window := membership.PolicyFromSettings(e.settings()).ReminderWindow
	return e.run(ctx, kindReminders, now, func(m models.Membership) bool {
		if !m.HasAccess() || m.ExpiresAt == nil {
			return false
		}
		return m.ExpiresAt.Sub(now) <= window
	})
}

func (e *Engine) run(ctx context.Context, kind string, now time.Time, filter func(models.Membership) bool) (Summary, error) {
	var summary Summary
	start := time.Now()
	settings := e.settings()
	policy := membership.PolicyFromSettings(settings)
	batchSize := settings.EnforcementBatchSize
	if batchSize <= 0 {
		batchSize = models.DefaultAppSettings().EnforcementBatchSize
	}
	now = now.UTC()

	metrics.EnforcementCycles.WithLabelValues(kind).Inc()
	defer func() {
		metrics.EnforcementDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	repo := membership.NewRepository(e.db)
	var cursor uint
	for {
		batch, err := repo.ListEnforceable(ctx, cursor, batchSize)
		if err != nil {
			return summary, &membership.PersistenceError{Op: "list enforceable", Err: err}
		}
		if len(batch) == 0 {
			break
		}

		for _, m := range batch {
			if err := ctx.Err(); err != nil {
				log.Warnf("[Enforcement] %s cycle interrupted after %d records: %v", kind, summary.Evaluated, err)
				return summary, err
			}
			cursor = m.ID
			if filter != nil && !filter(m) {
				continue
			}

			o, err := e.process(ctx, m.UserID, now, policy)
			summary.add(o)
			if err != nil {
				summary.Errors++
				metrics.EnforcementErrors.WithLabelValues(kind).Inc()
				log.Errorf("[Enforcement] user %d: %v", m.UserID, err)
			}
		}

		if len(batch) < batchSize {
			break
		}
	}

	log.Infof("[Enforcement] %s cycle done in %s: evaluated=%d transitioned=%d granted=%d revoked=%d reminders=%d errors=%d",
		kind, time.Since(start).Round(time.Millisecond), summary.Evaluated, summary.Transitioned,
		summary.Granted, summary.Revoked, summary.RemindersSent, summary.Errors)
	return summary, nil
}

// process locks and re-evaluates one membership. The gateway call happens
// before commit, notifications after. A gateway failure is returned after the
// new state has been committed with access_dirty set.
func (e *Engine) process(ctx context.Context, userID int64, now time.Time, policy membership.Policy) (outcome, error) {
	var (
		o         outcome
		before    models.Membership
		after     models.Membership
		decision  membership.Decision
		accessErr error
		touched   bool
	)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := membership.NewRepository(tx)
		m, err := repo.Lock(ctx, userID, false)
		if err != nil {
			return err
		}
		before = *m
		decision = membership.Evaluate(*m, now, policy)
		if !decision.Changed() && !decision.Remind && !m.AccessDirty {
			return nil
		}

		after = membership.Transition(*m, decision, now)
		if decision.Changed() || m.AccessDirty {
			action, syncErr := e.access.Sync(ctx, userID, after.Status)
			after.AccessDirty = syncErr != nil
			if syncErr == nil {
				o.action = action
			}
			accessErr = syncErr
		}
		touched = true
		return repo.Save(ctx, &after)
	})
	if err != nil {
		if errors.Is(err, membership.ErrNotFound) || errors.Is(err, membership.ErrVersionConflict) {
			return outcome{}, err
		}
		return outcome{}, &membership.PersistenceError{Op: "enforce", Err: err}
	}
	if !touched {
		return o, nil
	}

	o.transitioned = decision.Changed()
	sent := e.announcer.Announce(ctx, before, after, decision.Remind, now)
	o.reminded = decision.Remind && sent
	if o.transitioned {
		log.Infof("[Enforcement] user %d %s -> %s", userID, before.Status, after.Status)
	}
	if accessErr != nil {
		return o, accessErr
	}
	return o, nil
}
