// Package broadcast fans a message out to a user segment at a bounded rate.
// Jobs are persisted with a cursor so an interrupted drain resumes where the
// last committed batch ended.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/events"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/metrics"
)

var (
	ErrNotFound       = errors.New("broadcast job not found")
	ErrFinished       = errors.New("broadcast job already finished")
	ErrInvalidSegment = errors.New("invalid segment")
	errThrottled      = errors.New("throttle budget exhausted")
)

// commitTimeout bounds the progress write that follows a cancelled batch.
const commitTimeout = 5 * time.Second

type Options struct {
	Sender          messaging.BroadcastSender
	Publisher       events.Publisher
	ThrottleRetries uint64
	SendTimeout     time.Duration
}

// Dispatcher owns the broadcast job table and drains it one batch per tick.
type Dispatcher struct {
	db         *gorm.DB
	sender     messaging.BroadcastSender
	publisher  events.Publisher
	limiter    *rate.Limiter
	validate   *validator.Validate
	retries    uint64
	timeout    time.Duration
	settings   func() *models.AppSettings
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

func NewDispatcher(db *gorm.DB, opts Options) *Dispatcher {
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.ThrottleRetries == 0 {
		opts.ThrottleRetries = 5
	}
	settings := models.GetAppSettings()
	return &Dispatcher{
		db:        db,
		sender:    opts.Sender,
		publisher: opts.Publisher,
		limiter:   rate.NewLimiter(rate.Limit(settings.BroadcastRatePerSecond), 1),
		validate:  validator.New(),
		retries:   opts.ThrottleRetries,
		timeout:   opts.SendTimeout,
		settings:  models.GetAppSettings,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue validates and stores a new queued job.
func (d *Dispatcher) Enqueue(ctx context.Context, segment, locale string, payload models.BroadcastPayload) (*models.BroadcastJob, error) {
	segment = strings.ToLower(strings.TrimSpace(segment))
	if !models.IsValidSegment(segment) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSegment, segment)
	}
	if err := d.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	job := &models.BroadcastJob{
		ID:           uuid.NewString(),
		Segment:      segment,
		LocaleFilter: strings.ToLower(strings.TrimSpace(locale)),
		Payload:      payload,
		Status:       models.BroadcastStatusQueued,
		CreatedAt:    d.now(),
	}
	if err := d.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create broadcast job: %w", err)
	}
	log.Infof("[Broadcast] Job %s queued for segment %s (locale %q)", job.ID, job.Segment, job.LocaleFilter)
	return job, nil
}

func (d *Dispatcher) Get(ctx context.Context, id string) (*models.BroadcastJob, error) {
	var job models.BroadcastJob
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the newest jobs first, optionally filtered by status.
func (d *Dispatcher) List(ctx context.Context, status string, limit int) ([]models.BroadcastJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := d.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []models.BroadcastJob
	err := q.Find(&jobs).Error
	return jobs, err
}

// Failures returns the per-recipient failure records of a job.
func (d *Dispatcher) Failures(ctx context.Context, id string) ([]models.BroadcastFailure, error) {
	var out []models.BroadcastFailure
	err := d.db.WithContext(ctx).Where("job_id = ?", id).Order("id ASC").Find(&out).Error
	return out, err
}

// Cancel stops a queued or running job. A batch already in flight finishes
// and records its progress; the next tick skips the job.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (*models.BroadcastJob, error) {
	now := d.now()
	res := d.db.WithContext(ctx).Model(&models.BroadcastJob{}).
		Where("id = ? AND status IN ?", id, []string{models.BroadcastStatusQueued, models.BroadcastStatusRunning}).
		Updates(map[string]interface{}{
			"status":       models.BroadcastStatusCancelled,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	job, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return job, ErrFinished
	}
	log.Infof("[Broadcast] Job %s cancelled at cursor %d", id, job.Cursor)
	d.finished(ctx, job)
	return job, nil
}

// Cleanup deletes finished jobs created before olderThan ago, with their
// failure records.
func (d *Dispatcher) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := d.now().Add(-olderThan)
	var ids []string
	err := d.db.WithContext(ctx).Model(&models.BroadcastJob{}).
		Where("status IN ? AND created_at < ?", []string{
			models.BroadcastStatusCompleted, models.BroadcastStatusFailed, models.BroadcastStatusCancelled,
		}, cutoff).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	var removed int64
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id IN ?", ids).Delete(&models.BroadcastFailure{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.BroadcastJob{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, err
	}
	log.Infof("[Broadcast] Cleanup removed %d jobs older than %s", removed, olderThan)
	return removed, nil
}

// DrainTick advances one job by one batch: the oldest running job, or else
// the oldest queued job, which is promoted to running. It returns the job it
// worked on, or nil when there was nothing to do.
func (d *Dispatcher) DrainTick(ctx context.Context) (*models.BroadcastJob, error) {
	job, err := d.nextJob(ctx)
	if err != nil || job == nil {
		return nil, err
	}

	settings := d.settings()
	batchSize := settings.BroadcastBatchSize
	if batchSize <= 0 {
		batchSize = models.DefaultAppSettings().BroadcastBatchSize
	}
	if settings.BroadcastRatePerSecond > 0 {
		d.limiter.SetLimit(rate.Limit(settings.BroadcastRatePerSecond))
	}

	batch, err := d.recipients(ctx, job, batchSize)
	if err != nil {
		return job, fmt.Errorf("load recipients of %s: %w", job.ID, err)
	}
	if len(batch) == 0 {
		return job, d.complete(ctx, job)
	}

	progress, sendErr := d.sendBatch(ctx, job, batch)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// keep what was handled before the deadline so the next tick does not
		// send it again
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		defer cancel()
		if err := d.commit(commitCtx, job, progress); err != nil {
			log.Errorf("[Broadcast] Job %s: saving progress after %v failed: %v", job.ID, ctxErr, err)
		}
		return job, ctxErr
	}
	if err := d.commit(ctx, job, progress); err != nil {
		return job, err
	}

	switch {
	case errors.Is(sendErr, messaging.ErrPayloadRejected):
		return job, d.fail(ctx, job, sendErr)
	case errors.Is(sendErr, errThrottled):
		log.Warnf("[Broadcast] Job %s paused at cursor %d: %v", job.ID, job.Cursor, sendErr)
	}
	return job, nil
}

func (d *Dispatcher) nextJob(ctx context.Context) (*models.BroadcastJob, error) {
	var job models.BroadcastJob
	err := d.db.WithContext(ctx).
		Where("status = ?", models.BroadcastStatusRunning).
		Order("created_at ASC, id ASC").
		First(&job).Error
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = d.db.WithContext(ctx).
		Where("status = ?", models.BroadcastStatusQueued).
		Order("created_at ASC, id ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := d.now()
	res := d.db.WithContext(ctx).Model(&models.BroadcastJob{}).
		Where("id = ? AND version = ? AND status = ?", job.ID, job.Version, models.BroadcastStatusQueued).
		Updates(map[string]interface{}{
			"status":     models.BroadcastStatusRunning,
			"started_at": now,
			"version":    job.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	job.Status = models.BroadcastStatusRunning
	job.StartedAt = &now
	job.Version++
	log.Infof("[Broadcast] Job %s started", job.ID)
	return &job, nil
}

type progress struct {
	cursor   uint
	sent     int
	failures []models.BroadcastFailure
}

// sendBatch delivers to recipients in id order. It stops early when the
// throttle budget runs out, the payload is refused or ctx ends; cursor only
// covers recipients that were handled.
func (d *Dispatcher) sendBatch(ctx context.Context, job *models.BroadcastJob, batch []recipient) (progress, error) {
	p := progress{cursor: job.Cursor}
	for _, r := range batch {
		if err := d.limiter.Wait(ctx); err != nil {
			return p, err
		}

		err := d.deliver(ctx, r.UserID, job.Payload)
		metrics.BroadcastMessages.WithLabelValues(resultLabel(err)).Inc()
		switch {
		case err == nil:
			p.sent++
		case ctx.Err() != nil:
			return p, ctx.Err()
		case errors.Is(err, errThrottled), errors.Is(err, messaging.ErrPayloadRejected):
			return p, err
		default:
			reason := err.Error()
			if len(reason) > 255 {
				reason = reason[:255]
			}
			p.failures = append(p.failures, models.BroadcastFailure{JobID: job.ID, UserID: r.UserID, Reason: reason})
			log.Debugf("[Broadcast] Job %s: user %d skipped: %v", job.ID, r.UserID, err)
		}
		p.cursor = r.ID
	}
	return p, nil
}

// deliver sends one message, waiting out throttling with exponential backoff
// that never undercuts the platform's retry-after hint.
func (d *Dispatcher) deliver(ctx context.Context, userID int64, payload models.BroadcastPayload) error {
	b := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), d.retries), ctx)
	for {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.sender.SendBroadcast(sendCtx, userID, payload)
		cancel()

		throttle, ok := messaging.IsThrottled(err)
		if !ok {
			return err
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: %v", errThrottled, err)
		}
		if throttle.RetryAfter > wait {
			wait = throttle.RetryAfter
		}
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(wait).After(deadline) {
			return fmt.Errorf("%w: retry in %s passes the tick deadline: %v", errThrottled, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, errThrottled):
		return "throttled"
	case errors.Is(err, messaging.ErrRecipientUnavailable):
		return "unavailable"
	default:
		return "failed"
	}
}

// commit records the failures and advances cursor and counters in one
// transaction, guarded by the job version.
func (d *Dispatcher) commit(ctx context.Context, job *models.BroadcastJob, p progress) error {
	if p.cursor == job.Cursor && p.sent == 0 && len(p.failures) == 0 {
		return nil
	}
	now := d.now()
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(p.failures) > 0 {
			if err := tx.Create(&p.failures).Error; err != nil {
				return err
			}
		}
		res := tx.Model(&models.BroadcastJob{}).
			Where("id = ? AND version = ?", job.ID, job.Version).
			Updates(map[string]interface{}{
				"cursor":       p.cursor,
				"sent_count":   job.SentCount + p.sent,
				"failed_count": job.FailedCount + len(p.failures),
				"version":      job.Version + 1,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("broadcast job %s changed concurrently", job.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit batch of %s: %w", job.ID, err)
	}
	job.Cursor = p.cursor
	job.SentCount += p.sent
	job.FailedCount += len(p.failures)
	job.Version++
	log.Debugf("[Broadcast] Job %s at cursor %d: sent=%d failed=%d", job.ID, job.Cursor, job.SentCount, job.FailedCount)
	return nil
}

func (d *Dispatcher) complete(ctx context.Context, job *models.BroadcastJob) error {
	return d.finish(ctx, job, models.BroadcastStatusCompleted, "")
}

func (d *Dispatcher) fail(ctx context.Context, job *models.BroadcastJob, cause error) error {
	return d.finish(ctx, job, models.BroadcastStatusFailed, cause.Error())
}

func (d *Dispatcher) finish(ctx context.Context, job *models.BroadcastJob, status, msg string) error {
	now := d.now()
	res := d.db.WithContext(ctx).Model(&models.BroadcastJob{}).
		Where("id = ? AND version = ? AND status = ?", job.ID, job.Version, models.BroadcastStatusRunning).
		Updates(map[string]interface{}{
			"status":       status,
			"error_msg":    msg,
			"completed_at": now,
			"version":      job.Version + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	job.Status = status
	job.ErrorMsg = msg
	job.CompletedAt = &now
	job.Version++
	log.Infof("[Broadcast] Job %s %s: sent=%d failed=%d", job.ID, status, job.SentCount, job.FailedCount)
	d.finished(ctx, job)
	return nil
}

func (d *Dispatcher) finished(ctx context.Context, job *models.BroadcastJob) {
	ev := events.BroadcastFinished{
		JobID:  job.ID,
		Status: job.Status,
		Sent:   job.SentCount,
		Failed: job.FailedCount,
		At:     d.now(),
	}
	if err := d.publisher.Publish(ctx, events.TopicBroadcastFinished, ev); err != nil {
		log.Warnf("[Broadcast] publish finish of %s failed: %v", job.ID, err)
	}
}
