package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// Repository provides DB operations on the payment ledger.
type Repository interface {
	FindPayment(ctx context.Context, paymentID string) (*models.PaymentEvent, error)
	CreatePaymentIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	MarkPaymentProcessed(ctx context.Context, id uint, status, reason string, expiresAt *time.Time) error
	Stats(ctx context.Context, from, to time.Time) (*Stats, error)
	ListPaymentsAfter(ctx context.Context, afterID uint, limit int) ([]models.PaymentEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// FindPayment returns nil without error when the payment is unknown.
func (r *gormRepository) FindPayment(ctx context.Context, paymentID string) (*models.PaymentEvent, error) {
	var ev models.PaymentEvent
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *gormRepository) CreatePaymentIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentEvent
	if err := r.db.WithContext(ctx).Where("payment_id = ?", event.PaymentID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkPaymentProcessed(ctx context.Context, id uint, status, reason string, expiresAt *time.Time) error {
	updates := map[string]interface{}{
		"processing_status": status,
		"reject_reason":     reason,
		"result_expires_at": expiresAt,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	var rows []struct {
		ProcessingStatus string
		PlanKind         string
		Total            int64
		Revenue          float64
	}
	err := r.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Select("processing_status, plan_kind, COUNT(*) AS total, COALESCE(SUM(amount), 0) AS revenue").
		Where("received_at >= ? AND received_at < ?", from, to).
		Group("processing_status, plan_kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &Stats{From: from, To: to, ByStatus: map[string]int64{}, ByPlan: map[string]int64{}}
	for _, row := range rows {
		stats.Total += row.Total
		stats.ByStatus[row.ProcessingStatus] += row.Total
		if row.ProcessingStatus == models.PaymentStatusApplied {
			stats.Revenue += row.Revenue
			stats.ByPlan[row.PlanKind] += row.Total
		}
	}
	return stats, nil
}

func (r *gormRepository) ListPaymentsAfter(ctx context.Context, afterID uint, limit int) ([]models.PaymentEvent, error) {
	var out []models.PaymentEvent
	err := r.db.WithContext(ctx).Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&out).Error
	return out, err
}
