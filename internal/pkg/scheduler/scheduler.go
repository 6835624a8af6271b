// Package scheduler runs recurring jobs from a durable schedule table. Each
// due run is claimed with a version compare-and-set plus a lease so that only
// one instance executes it, and next_run_at only moves after the run
// completes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/metrics"
)

var (
	ErrJobNotFound = errors.New("scheduled job not found")
	ErrJobPaused   = errors.New("scheduled job is paused")
)

// Handler is the work of one job run.
type Handler func(ctx context.Context) error

// Job is a registration: the handler plus the trigger used when the job is
// first persisted.
type Job struct {
	ID           string
	Name         string
	Trigger      Trigger
	MisfireGrace time.Duration
	Handler      Handler
}

type Options struct {
	InstanceID   string
	PollInterval time.Duration
	LeaseTTL     time.Duration
}

// Scheduler polls the schedule table and runs due jobs it has handlers for.
type Scheduler struct {
	db           *gorm.DB
	instanceID   string
	pollInterval time.Duration
	leaseTTL     time.Duration
	// heartbeat is how often a running job extends its lease.
	heartbeat time.Duration
	now       func() time.Time

	mu       sync.Mutex
	handlers map[string]Job
	inflight map[string]bool
	running  bool
	stopCh   chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(db *gorm.DB, opts Options) *Scheduler {
	if opts.InstanceID == "" {
		host, _ := os.Hostname()
		opts.InstanceID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 30 * time.Minute
	}
	return &Scheduler{
		db:           db,
		instanceID:   opts.InstanceID,
		pollInterval: opts.PollInterval,
		leaseTTL:     opts.LeaseTTL,
		heartbeat:    opts.LeaseTTL / 3,
		now:          func() time.Time { return time.Now().UTC() },
		handlers:     map[string]Job{},
		inflight:     map[string]bool{},
	}
}

// InstanceID identifies this scheduler in locked_by.
func (s *Scheduler) InstanceID() string {
	return s.instanceID
}

// Register adds the handler of job and persists the job row if it does not
// exist yet. An existing row keeps its trigger, pause flag and statistics.
func (s *Scheduler) Register(ctx context.Context, job Job) error {
	if job.ID == "" || job.Handler == nil {
		return fmt.Errorf("register job: id and handler are required")
	}
	if err := job.Trigger.Validate(); err != nil {
		return fmt.Errorf("register job %s: %w", job.ID, err)
	}
	if job.MisfireGrace <= 0 {
		job.MisfireGrace = 5 * time.Minute
	}
	if job.Name == "" {
		job.Name = job.ID
	}

	next, err := job.Trigger.Next(s.now())
	if err != nil {
		return err
	}
	row := models.ScheduledJob{
		ID:                  job.ID,
		Name:                job.Name,
		TriggerKind:         job.Trigger.Kind,
		IntervalSeconds:     int64(job.Trigger.Interval / time.Second),
		CronExpr:            job.Trigger.Cron,
		NextRunAt:           next,
		MisfireGraceSeconds: int64(job.MisfireGrace / time.Second),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("register job %s: %w", job.ID, res.Error)
	}

	s.mu.Lock()
	s.handlers[job.ID] = job
	s.mu.Unlock()

	if res.RowsAffected > 0 {
		log.Infof("[Scheduler] Registered job %s (%s), next run %s", job.ID, job.Trigger, next.Format(time.RFC3339))
	} else {
		log.Infof("[Scheduler] Job %s already scheduled, keeping persisted trigger", job.ID)
	}
	return nil
}

// Start launches the poll loop. Jobs run in their own goroutines.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)
	log.Infof("[Scheduler] Started instance %s (poll %s, lease %s)", s.instanceID, s.pollInterval, s.leaseTTL)
}

// Stop ends the poll loop, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("[Scheduler] Stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			claimed, err := s.claimDue(ctx)
			if err != nil {
				log.Errorf("[Scheduler] Poll failed: %v", err)
				continue
			}
			for _, row := range claimed {
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.execute(ctx, row)
				}()
			}
		}
	}
}

// RunDue claims and runs every due job synchronously and returns how many
// ran. The poll loop does the same with one goroutine per job.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	claimed, err := s.claimDue(ctx)
	if err != nil {
		return 0, err
	}
	for _, row := range claimed {
		s.execute(ctx, row)
	}
	return len(claimed), nil
}

func (s *Scheduler) claimDue(ctx context.Context) ([]models.ScheduledJob, error) {
	var rows []models.ScheduledJob
	if err := s.db.WithContext(ctx).Order("next_run_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	now := s.now()
	var claimed []models.ScheduledJob
	for i := range rows {
		row := rows[i]
		if row.Paused || row.IsLocked(now) || row.NextRunAt.After(now) {
			continue
		}
		if !s.tryMarkInflight(row.ID) {
			continue
		}
		ok, err := s.claim(ctx, &row, now)
		if err != nil || !ok {
			s.clearInflight(row.ID)
			if err != nil {
				log.Errorf("[Scheduler] Claim %s failed: %v", row.ID, err)
			}
			continue
		}
		claimed = append(claimed, row)
	}
	return claimed, nil
}

// tryMarkInflight reports false when the job has no local handler or is
// already running in this process.
func (s *Scheduler) tryMarkInflight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[id]; !ok || s.inflight[id] {
		return false
	}
	s.inflight[id] = true
	return true
}

func (s *Scheduler) clearInflight(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// claim takes the lease on row if nobody changed it since it was read.
func (s *Scheduler) claim(ctx context.Context, row *models.ScheduledJob, now time.Time) (bool, error) {
	until := now.Add(s.leaseTTL)
	res := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ? AND version = ?", row.ID, row.Version).
		Updates(map[string]interface{}{
			"locked_by":    s.instanceID,
			"locked_until": until,
			"last_run_at":  now,
			"version":      row.Version + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	row.Version++
	row.LockedBy = s.instanceID
	row.LockedUntil = &until
	row.LastRunAt = &now
	return true, nil
}

func (s *Scheduler) execute(ctx context.Context, row models.ScheduledJob) {
	defer s.clearInflight(row.ID)

	s.mu.Lock()
	job := s.handlers[row.ID]
	s.mu.Unlock()

	start := s.now()
	grace := time.Duration(row.MisfireGraceSeconds) * time.Second
	misfired := start.Sub(row.NextRunAt) > grace
	if misfired {
		metrics.SchedulerMisfires.WithLabelValues(row.ID).Inc()
		log.Warnf("[Scheduler] Job %s misfired: due %s, started %s late (grace %s); running once",
			row.ID, row.NextRunAt.Format(time.RFC3339), start.Sub(row.NextRunAt).Round(time.Second), grace)
	}

	log.Debugf("[Scheduler] Running job %s", row.ID)
	runCtx, cancelRun := context.WithCancel(ctx)
	stopBeat := make(chan struct{})
	beatDone := make(chan struct{})
	go func() {
		defer close(beatDone)
		s.keepLease(runCtx, row.ID, cancelRun, stopBeat)
	}()
	err := runHandler(runCtx, job.Handler)
	close(stopBeat)
	<-beatDone
	cancelRun()
	duration := time.Since(start)
	metrics.SchedulerRuns.WithLabelValues(row.ID, metrics.Result(err)).Inc()
	if err != nil {
		log.Errorf("[Scheduler] Job %s failed after %s: %v", row.ID, duration.Round(time.Millisecond), err)
	} else {
		log.Debugf("[Scheduler] Job %s finished in %s", row.ID, duration.Round(time.Millisecond))
	}

	// Recording completion uses its own context so a shutdown mid-run still
	// releases the lease.
	recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := s.complete(recordCtx, row.ID, misfired, err); cerr != nil {
		log.Errorf("[Scheduler] Recording completion of %s failed: %v", row.ID, cerr)
	}
}

// keepLease extends the lease of a running job until stop is closed. When
// the row is no longer locked by this instance the run is cancelled.
func (s *Scheduler) keepLease(ctx context.Context, id string, cancelRun context.CancelFunc, stop <-chan struct{}) {
	interval := s.heartbeat
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := s.extendLease(ctx, id)
			if err != nil {
				log.Warnf("[Scheduler] Extending lease of %s failed: %v", id, err)
				continue
			}
			if !held {
				log.Errorf("[Scheduler] Lease of %s lost, cancelling the run", id)
				cancelRun()
				return
			}
		}
	}
}

// extendLease pushes locked_until forward and bumps the version so a claim
// prepared from an older read fails.
func (s *Scheduler) extendLease(ctx context.Context, id string) (bool, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ? AND locked_by = ?", id, s.instanceID).
		Updates(map[string]interface{}{
			"locked_until": now.Add(s.leaseTTL),
			"version":      gorm.Expr("version + 1"),
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func runHandler(ctx context.Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx)
}

// complete releases the lease and moves next_run_at past the completion
// time, using the trigger as persisted now so admin edits made during the
// run are honored.
func (s *Scheduler) complete(ctx context.Context, id string, misfired bool, runErr error) error {
	var row models.ScheduledJob
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return err
	}

	now := s.now()
	next, err := triggerOf(&row).Next(now)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"locked_by":    "",
		"locked_until": nil,
		"next_run_at":  next,
		"executions":   gorm.Expr("executions + 1"),
		"version":      gorm.Expr("version + 1"),
		"updated_at":   now,
	}
	if misfired {
		updates["misfires"] = gorm.Expr("misfires + 1")
	}
	if runErr != nil {
		updates["errors"] = gorm.Expr("errors + 1")
		updates["last_error_at"] = now
		updates["last_error"] = runErr.Error()
	} else {
		updates["last_success_at"] = now
	}

	return s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ? AND locked_by = ?", id, s.instanceID).
		Updates(updates).Error
}

// Registered returns the ids of jobs this instance has handlers for.
func (s *Scheduler) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
