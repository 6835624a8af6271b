package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/events"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/membership"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/metrics"
)

// Service applies payment confirmations to memberships exactly once per
// payment id.
type Service struct {
	db        *gorm.DB
	catalog   *Catalog
	access    *membership.Access
	announcer membership.Announcer
	adminIDs  []int64
	now       func() time.Time
}

// Options wires the collaborators of the service.
type Options struct {
	Catalog   *Catalog
	Access    *membership.Access
	Notifier  messaging.Notifier
	Publisher events.Publisher
	AdminIDs  []int64
}

// NewService creates a payment service.
func NewService(db *gorm.DB, opts Options) *Service {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = messaging.NopNotifier{}
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	return &Service{
		db:        db,
		catalog:   opts.Catalog,
		access:    opts.Access,
		announcer: membership.Announcer{Notifier: notifier, Publisher: publisher},
		adminIDs:  opts.AdminIDs,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one payment confirmation. Replays of a known payment id
// return the recorded result without side effects. Only boundary validation
// and persistence failures are returned as errors.
func (s *Service) Handle(ctx context.Context, in PaymentInput) (*Result, error) {
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if in.PaymentID == "" {
		return nil, &ValidationError{Field: "payment_id", Message: "is required"}
	}
	if len(in.PaymentID) > 191 {
		return nil, &ValidationError{Field: "payment_id", Message: "is too long"}
	}
	if in.UserID <= 0 {
		return nil, &ValidationError{Field: "user_id", Message: "is required"}
	}
	if in.Amount < 0 {
		return nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = s.now()
	}

	existing, err := NewRepository(s.db).FindPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, &membership.PersistenceError{Op: "lookup payment", Err: err}
	}
	if existing != nil {
		return replay(existing), nil
	}

	plan, reason := s.resolve(in)
	if plan.Kind != "" {
		in.PlanKind = plan.Kind
	}
	now := s.now()

	var (
		result    *Result
		before    models.Membership
		after     models.Membership
		replayed  bool
		accessErr error
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := NewRepository(tx)
		event := &models.PaymentEvent{
			PaymentID:        in.PaymentID,
			UserID:           in.UserID,
			PlanKind:         in.PlanKind,
			Amount:           in.Amount,
			Currency:         in.Currency,
			ProviderStatus:   in.ProviderStatus,
			ReceivedAt:       in.ReceivedAt.UTC(),
			ProcessingStatus: models.PaymentStatusUnseen,
		}
		created, stored, err := ledger.CreatePaymentIfNotExists(ctx, event)
		if err != nil {
			return err
		}
		if !created {
			result = replay(stored)
			replayed = true
			return nil
		}

		if reason != "" {
			result = &Result{Outcome: OutcomeRejected, PaymentID: in.PaymentID, UserID: in.UserID, PlanKind: in.PlanKind, Reason: reason}
			return ledger.MarkPaymentProcessed(ctx, stored.ID, models.PaymentStatusRejected, reason, nil)
		}

		members := membership.NewRepository(tx)
		m, err := members.Lock(ctx, in.UserID, true)
		if err != nil {
			return err
		}
		before = *m
		next, applied := membership.Activate(*m, plan.Kind, plan.Duration, in.PaymentID, now)
		status := models.PaymentStatusDuplicate
		outcome := OutcomeDuplicate
		if applied {
			// grant while the row is locked so a concurrent revoke is ordered
			// after it
			_, accessErr = s.access.Sync(ctx, in.UserID, next.Status)
			next.AccessDirty = accessErr != nil
			if err := members.Save(ctx, &next); err != nil {
				return err
			}
			status = models.PaymentStatusApplied
			outcome = OutcomeApplied
		}
		after = next
		result = &Result{Outcome: outcome, PaymentID: in.PaymentID, UserID: in.UserID, PlanKind: next.PlanKind, ExpiresAt: next.ExpiresAt}
		return ledger.MarkPaymentProcessed(ctx, stored.ID, status, "", next.ExpiresAt)
	})
	if err != nil {
		return nil, &membership.PersistenceError{Op: "apply payment", Err: err}
	}
	if replayed {
		return result, nil
	}

	metrics.Payments.WithLabelValues(string(result.Outcome)).Inc()
	switch result.Outcome {
	case OutcomeApplied:
		log.Infof("[Billing] Payment %s applied for user %d (%s), expires %v", in.PaymentID, in.UserID, result.PlanKind, result.ExpiresAt)
		if accessErr != nil {
			log.Errorf("[Billing] Granting access to user %d failed, marked for retry: %v", in.UserID, accessErr)
		}
		s.afterApplied(ctx, before, after, now)
	case OutcomeRejected:
		log.Warnf("[Billing] Payment %s for user %d rejected: %s", in.PaymentID, in.UserID, result.Reason)
		s.notify(ctx, messaging.Notification{
			UserID:   in.UserID,
			Template: messaging.TemplatePaymentRejected,
			Data:     map[string]string{"payment_id": in.PaymentID, "reason": result.Reason},
		})
	}
	s.alertAdmins(ctx, in, result)
	s.publish(ctx, in, result, now)
	return result, nil
}

// resolve returns the plan of in, or a rejection reason.
func (s *Service) resolve(in PaymentInput) (Plan, string) {
	switch normalizeProviderStatus(in.ProviderStatus) {
	case providerPaid:
	case providerFailed:
		return Plan{}, fmt.Sprintf("provider reported status %q", in.ProviderStatus)
	default:
		return Plan{}, fmt.Sprintf("unsupported provider status %q", in.ProviderStatus)
	}

	if strings.TrimSpace(in.PlanKind) == "" {
		if p, ok := s.catalog.MatchAmount(in.Amount); ok {
			return p, ""
		}
		return Plan{}, "plan missing and amount matches no plan"
	}
	plan, ok := s.catalog.Lookup(in.PlanKind)
	if !ok {
		return Plan{}, fmt.Sprintf("unknown plan %q", in.PlanKind)
	}
	if !s.catalog.PriceMatches(plan, in.Amount) {
		return plan, fmt.Sprintf("amount %.2f does not match %s price %.2f", in.Amount, plan.Kind, plan.Price)
	}
	return plan, ""
}

func (s *Service) afterApplied(ctx context.Context, before, after models.Membership, now time.Time) {
	if before.Status == after.Status {
		// renewal: the announcer only speaks on status changes
		n, _ := membership.NotificationFor(models.Membership{}, after, false, now)
		s.notify(ctx, n)
	}
	s.announcer.Announce(ctx, before, after, false, now)
}

func (s *Service) alertAdmins(ctx context.Context, in PaymentInput, r *Result) {
	for _, adminID := range s.adminIDs {
		s.notify(ctx, messaging.Notification{
			UserID:   adminID,
			Template: messaging.TemplateAdminPaymentAlert,
			Data: map[string]string{
				"payment_id": in.PaymentID,
				"user_id":    strconv.FormatInt(in.UserID, 10),
				"plan":       in.PlanKind,
				"amount":     strconv.FormatFloat(in.Amount, 'f', 2, 64),
				"currency":   in.Currency,
				"outcome":    string(r.Outcome),
				"reason":     r.Reason,
			},
		})
	}
}

func (s *Service) notify(ctx context.Context, n messaging.Notification) {
	if err := s.announcer.Notifier.Notify(ctx, n); err != nil {
		log.Errorf("[Billing] enqueue %s for %d failed: %v", n.Template, n.UserID, err)
	}
}

func (s *Service) publish(ctx context.Context, in PaymentInput, r *Result, now time.Time) {
	ev := events.PaymentProcessed{
		PaymentID: in.PaymentID,
		UserID:    in.UserID,
		PlanKind:  r.PlanKind,
		Amount:    in.Amount,
		Outcome:   string(r.Outcome),
		Reason:    r.Reason,
		ExpiresAt: r.ExpiresAt,
		At:        now,
	}
	if err := s.announcer.Publisher.Publish(ctx, events.TopicPaymentProcessed, ev); err != nil {
		log.Warnf("[Billing] publish payment %s failed: %v", in.PaymentID, err)
	}
}

// Stats summarizes the ledger between from and to.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	return NewRepository(s.db).Stats(ctx, from.UTC(), to.UTC())
}

// Payment returns the ledger row of paymentID, or nil when unknown.
func (s *Service) Payment(ctx context.Context, paymentID string) (*models.PaymentEvent, error) {
	return NewRepository(s.db).FindPayment(ctx, paymentID)
}

func replay(ev *models.PaymentEvent) *Result {
	r := &Result{
		PaymentID: ev.PaymentID,
		UserID:    ev.UserID,
		PlanKind:  ev.PlanKind,
		ExpiresAt: ev.ResultExpiresAt,
		Reason:    ev.RejectReason,
		Replayed:  true,
	}
	if ev.ProcessingStatus == models.PaymentStatusRejected {
		r.Outcome = OutcomeRejected
	} else {
		r.Outcome = OutcomeDuplicate
	}
	return r
}
