package models

import "time"

const (
	BroadcastStatusQueued    = "queued"
	BroadcastStatusRunning   = "running"
	BroadcastStatusCompleted = "completed"
	BroadcastStatusFailed    = "failed"
	BroadcastStatusCancelled = "cancelled"
)

const (
	SegmentNew     = "new"
	SegmentActive  = "active"
	SegmentExpired = "expired"
	SegmentAll     = "all"
)

// BroadcastPayload is the message sent to every recipient of a broadcast.
type BroadcastPayload struct {
	Text                  string `json:"text" validate:"required,max=4096"`
	ParseMode             string `json:"parse_mode,omitempty" validate:"omitempty,oneof=HTML Markdown MarkdownV2"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// BroadcastJob is a persisted, resumable fan-out of one payload to a segment.
// Cursor holds the last bot_users.id that was handled.
type BroadcastJob struct {
	ID           string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	Segment      string           `gorm:"type:varchar(20);not null" json:"segment"`
	LocaleFilter string           `gorm:"type:varchar(10);not null;default:''" json:"locale_filter,omitempty"`
	Payload      BroadcastPayload `gorm:"type:text;serializer:json" json:"payload"`
	Status       string           `gorm:"type:varchar(20);not null;default:'queued';index" json:"status"`
	Cursor       uint             `gorm:"not null;default:0" json:"cursor"`
	SentCount    int              `gorm:"not null;default:0" json:"sent_count"`
	FailedCount  int              `gorm:"not null;default:0" json:"failed_count"`
	ErrorMsg     string           `gorm:"type:text" json:"error_msg,omitempty"`
	Version      int64            `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time        `gorm:"index" json:"created_at"`
	StartedAt    *time.Time       `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	CompletedAt  *time.Time       `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFinished reports whether the job will not be advanced any further.
func (j *BroadcastJob) IsFinished() bool {
	switch j.Status {
	case BroadcastStatusCompleted, BroadcastStatusFailed, BroadcastStatusCancelled:
		return true
	default:
		return false
	}
}

// BroadcastFailure records a recipient that could not be reached.
type BroadcastFailure struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	JobID     string    `gorm:"type:varchar(36);not null;index" json:"job_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	Reason    string    `gorm:"type:varchar(255);not null;default:''" json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsValidSegment reports whether segment is a known broadcast segment.
func IsValidSegment(segment string) bool {
	switch segment {
	case SegmentNew, SegmentActive, SegmentExpired, SegmentAll:
		return true
	default:
		return false
	}
}
