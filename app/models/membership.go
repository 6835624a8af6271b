package models

import "time"

const (
	MembershipStatusPending = "pending"
	MembershipStatusActive  = "active"
	MembershipStatusGrace   = "grace"
	MembershipStatusExpired = "expired"
	MembershipStatusRevoked = "revoked"
)

const (
	PlanMonthly  = "monthly"
	PlanAnnual   = "annual"
	PlanLifetime = "lifetime"
	PlanTrial    = "trial"
)

// Membership is the per-user entitlement record. Version is bumped on every
// write and used as a compare-and-set guard next to the row lock.
type Membership struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             int64      `gorm:"not null;uniqueIndex:ux_memberships_user_id" json:"user_id"`
	PlanKind           string     `gorm:"type:varchar(20);not null;default:''" json:"plan_kind"`
	Status             string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ExpiresAt          *time.Time `gorm:"type:timestamp;default:null;index" json:"expires_at,omitempty"`
	LastReminderSentAt *time.Time `gorm:"type:timestamp;default:null" json:"last_reminder_sent_at,omitempty"`
	SourcePaymentID    string     `gorm:"type:varchar(191);not null;default:''" json:"source_payment_id"`
	RevokeReason       string     `gorm:"type:varchar(255);not null;default:''" json:"revoke_reason,omitempty"`
	AccessDirty        bool       `gorm:"not null;default:false;index" json:"access_dirty"`
	Version            int64      `gorm:"not null;default:0" json:"version"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLifetime reports whether the membership never expires.
func (m *Membership) IsLifetime() bool {
	return m.PlanKind == PlanLifetime
}

// HasAccess reports whether the current status entitles the user to the gated destinations.
func (m *Membership) HasAccess() bool {
	return HasAccessStatus(m.Status)
}

// HasAccessStatus maps a membership status to access: active and grace keep
// access, everything else does not.
func HasAccessStatus(status string) bool {
	return status == MembershipStatusActive || status == MembershipStatusGrace
}

// IsValidPlanKind reports whether plan is one of the known plan kinds.
func IsValidPlanKind(plan string) bool {
	switch plan {
	case PlanMonthly, PlanAnnual, PlanLifetime, PlanTrial:
		return true
	default:
		return false
	}
}
