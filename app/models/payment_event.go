package models

import "time"

const (
	PaymentStatusUnseen    = "unseen"
	PaymentStatusApplied   = "applied"
	PaymentStatusDuplicate = "duplicate"
	PaymentStatusRejected  = "rejected"
)

// PaymentEvent is one row of the append-only payment ledger keyed by the
// provider payment id. Only the processing fields change after insert.
type PaymentEvent struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	PaymentID        string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_events_payment_id" json:"payment_id"`
	UserID           int64      `gorm:"not null;index" json:"user_id"`
	PlanKind         string     `gorm:"type:varchar(20);not null;default:''" json:"plan_kind"`
	Amount           float64    `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	Currency         string     `gorm:"type:varchar(10);not null;default:''" json:"currency"`
	ProviderStatus   string     `gorm:"type:varchar(30);not null;default:''" json:"provider_status"`
	ReceivedAt       time.Time  `gorm:"not null;index" json:"received_at"`
	ProcessingStatus string     `gorm:"type:varchar(20);not null;default:'unseen';index" json:"processing_status"`
	RejectReason     string     `gorm:"type:varchar(255);not null;default:''" json:"reject_reason,omitempty"`
	ResultExpiresAt  *time.Time `gorm:"type:timestamp;default:null" json:"result_expires_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
