package billing

import (
	"fmt"
	"time"
)

// Outcome is the tri-state result of handling a payment event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// PaymentInput is the provider-neutral payment confirmation.
type PaymentInput struct {
	PaymentID      string
	UserID         int64
	PlanKind       string
	Amount         float64
	Currency       string
	ProviderStatus string
	ReceivedAt     time.Time
}

// Result is returned for every handled event, including replays.
type Result struct {
	Outcome   Outcome    `json:"status"`
	PaymentID string     `json:"payment_id"`
	UserID    int64      `json:"user_id"`
	PlanKind  string     `json:"plan_kind,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Replayed  bool       `json:"replayed,omitempty"`
}

// ValidationError rejects an event at the boundary; nothing is recorded.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Stats summarizes the ledger over a time range.
type Stats struct {
	From     time.Time        `json:"from"`
	To       time.Time        `json:"to"`
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	Revenue  float64          `json:"revenue"`
	ByPlan   map[string]int64 `json:"by_plan"`
}
