package models

import "time"

const (
	TriggerInterval = "interval"
	TriggerCron     = "cron"
)

// ScheduledJob is the durable schedule metadata of one recurring job. Rows are
// claimed by a scheduler instance through LockedBy/LockedUntil and Version.
type ScheduledJob struct {
	ID                  string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name                string     `gorm:"type:varchar(255);not null;default:''" json:"name"`
	TriggerKind         string     `gorm:"type:varchar(20);not null" json:"trigger_kind"`
	IntervalSeconds     int64      `gorm:"not null;default:0" json:"interval_seconds,omitempty"`
	CronExpr            string     `gorm:"type:varchar(100);not null;default:''" json:"cron_expr,omitempty"`
	NextRunAt           time.Time  `gorm:"not null;index" json:"next_run_at"`
	LastRunAt           *time.Time `gorm:"type:timestamp;default:null" json:"last_run_at,omitempty"`
	MisfireGraceSeconds int64      `gorm:"not null;default:300" json:"misfire_grace_seconds"`
	Paused              bool       `gorm:"not null;default:false" json:"paused"`
	LockedBy            string     `gorm:"type:varchar(64);not null;default:''" json:"locked_by,omitempty"`
	LockedUntil         *time.Time `gorm:"type:timestamp;default:null" json:"locked_until,omitempty"`
	Version             int64      `gorm:"not null;default:0" json:"version"`
	Executions          int64      `gorm:"not null;default:0" json:"executions"`
	Errors              int64      `gorm:"not null;default:0" json:"errors"`
	Misfires            int64      `gorm:"not null;default:0" json:"misfires"`
	LastSuccessAt       *time.Time `gorm:"type:timestamp;default:null" json:"last_success_at,omitempty"`
	LastErrorAt         *time.Time `gorm:"type:timestamp;default:null" json:"last_error_at,omitempty"`
	LastError           string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLocked reports whether another run holds the lease at now.
func (j *ScheduledJob) IsLocked(now time.Time) bool {
	return j.LockedBy != "" && j.LockedUntil != nil && now.Before(*j.LockedUntil)
}
