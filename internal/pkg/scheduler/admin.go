package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// List returns every persisted job ordered by id.
func (s *Scheduler) List(ctx context.Context) ([]models.ScheduledJob, error) {
	var rows []models.ScheduledJob
	err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (s *Scheduler) Get(ctx context.Context, id string) (*models.ScheduledJob, error) {
	var row models.ScheduledJob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Pause stops a job from being claimed until Resume.
func (s *Scheduler) Pause(ctx context.Context, id string) (*models.ScheduledJob, error) {
	if err := s.update(ctx, id, map[string]interface{}{"paused": true}); err != nil {
		return nil, err
	}
	log.Infof("[Scheduler] Job %s paused", id)
	return s.Get(ctx, id)
}

// Resume unpauses a job and schedules its next run from now.
func (s *Scheduler) Resume(ctx context.Context, id string) (*models.ScheduledJob, error) {
	row, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := triggerOf(row).Next(s.now())
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, id, map[string]interface{}{"paused": false, "next_run_at": next}); err != nil {
		return nil, err
	}
	log.Infof("[Scheduler] Job %s resumed, next run %s", id, next.Format(time.RFC3339))
	return s.Get(ctx, id)
}

// TriggerNow makes the job due immediately. The next poll of any instance
// picks it up.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) (*models.ScheduledJob, error) {
	row, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Paused {
		return nil, ErrJobPaused
	}
	if err := s.update(ctx, id, map[string]interface{}{"next_run_at": s.now()}); err != nil {
		return nil, err
	}
	log.Infof("[Scheduler] Job %s triggered manually", id)
	return s.Get(ctx, id)
}

// UpdateTrigger replaces the persisted trigger and reschedules from now.
func (s *Scheduler) UpdateTrigger(ctx context.Context, id string, t Trigger) (*models.ScheduledJob, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	next, err := t.Next(s.now())
	if err != nil {
		return nil, err
	}
	updates := t.columns()
	updates["next_run_at"] = next
	if err := s.update(ctx, id, updates); err != nil {
		return nil, err
	}
	log.Infof("[Scheduler] Job %s rescheduled to %s, next run %s", id, t, next.Format(time.RFC3339))
	return s.Get(ctx, id)
}

func (s *Scheduler) update(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = s.now()
	res := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}
