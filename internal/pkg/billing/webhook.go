package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// WebhookPayload is the JSON body posted by the payment provider.
type WebhookPayload struct {
	ID          string          `json:"id" validate:"required,max=191"`
	Status      string          `json:"status" validate:"required,max=30"`
	Amount      float64         `json:"amount" validate:"gte=0"`
	Currency    string          `json:"currency" validate:"max=10"`
	Description string          `json:"description"`
	Metadata    WebhookMetadata `json:"metadata"`
}

// WebhookMetadata carries the values the checkout link was created with.
type WebhookMetadata struct {
	UserID flexInt `json:"user_id"`
	Plan   string  `json:"plan"`
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	*f = flexInt(v)
	return nil
}

var (
	payloadValidator = validator.New()
	descUserID       = regexp.MustCompile(`user_id[:=]\s*(\d+)`)
)

// ParseWebhook decodes and validates a provider body. The second return is
// false for events that must be acknowledged but not processed (pending).
func ParseWebhook(body []byte, receivedAt time.Time) (PaymentInput, bool, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return PaymentInput{}, false, &ValidationError{Field: "body", Message: err.Error()}
	}
	if err := payloadValidator.Struct(p); err != nil {
		return PaymentInput{}, false, &ValidationError{Field: "body", Message: err.Error()}
	}

	status := normalizeProviderStatus(p.Status)
	if status == "" {
		return PaymentInput{}, false, &ValidationError{Field: "status", Message: fmt.Sprintf("unsupported status %q", p.Status)}
	}

	userID := int64(p.Metadata.UserID)
	if userID == 0 {
		if m := descUserID.FindStringSubmatch(p.Description); m != nil {
			userID, _ = strconv.ParseInt(m[1], 10, 64)
		}
	}
	if userID <= 0 {
		return PaymentInput{}, false, &ValidationError{Field: "user_id", Message: "missing in metadata and description"}
	}

	in := PaymentInput{
		PaymentID:      p.ID,
		UserID:         userID,
		PlanKind:       p.Metadata.Plan,
		Amount:         p.Amount,
		Currency:       strings.ToUpper(p.Currency),
		ProviderStatus: strings.ToLower(p.Status),
		ReceivedAt:     receivedAt.UTC(),
	}
	return in, status != providerPending, nil
}
