package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeNotification JobType = "notification"
	JobTypeAdminAlert   JobType = "admin_alert"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
}

// NotificationJobPayload carries one templated message
type NotificationJobPayload struct {
	UserID   int64             `json:"user_id"`
	Template string            `json:"template"`
	Locale   string            `json:"locale,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

func NotificationJobPayloadFrom(n messaging.Notification) NotificationJobPayload {
	return NotificationJobPayload{
		UserID:   n.UserID,
		Template: string(n.Template),
		Locale:   n.Locale,
		Data:     n.Data,
	}
}

// Notification converts the payload back for the sender
func (p NotificationJobPayload) Notification() messaging.Notification {
	return messaging.Notification{
		UserID:   p.UserID,
		Template: messaging.Template(p.Template),
		Locale:   p.Locale,
		Data:     p.Data,
	}
}

// ToMap converts the payload to a map for storage
func (p NotificationJobPayload) ToMap() map[string]interface{} {
	data := make(map[string]interface{}, len(p.Data))
	for k, v := range p.Data {
		data[k] = v
	}
	return map[string]interface{}{
		"user_id":  p.UserID,
		"template": p.Template,
		"locale":   p.Locale,
		"data":     data,
	}
}

// NotificationJobPayloadFromMap creates a payload from a map
func NotificationJobPayloadFromMap(data map[string]interface{}) (*NotificationJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload NotificationJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
}
