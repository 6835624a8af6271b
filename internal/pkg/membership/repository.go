package membership

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// Repository is the membership store. Lock and Save are meant to run inside
// one transaction; build the repository from the transaction handle.
type Repository interface {
	Get(ctx context.Context, userID int64) (*models.Membership, error)
	Lock(ctx context.Context, userID int64, create bool) (*models.Membership, error)
	Save(ctx context.Context, m *models.Membership) error
	ListEnforceable(ctx context.Context, afterID uint, limit int) ([]models.Membership, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a membership repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Get(ctx context.Context, userID int64) (*models.Membership, error) {
	var m models.Membership
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Lock selects the row of userID FOR UPDATE. With create set a pending row
// is inserted first when none exists, so concurrent first events for one
// user converge on a single record.
func (r *gormRepository) Lock(ctx context.Context, userID int64, create bool) (*models.Membership, error) {
	db := r.db.WithContext(ctx)
	if create {
		pending := models.Membership{UserID: userID, Status: models.MembershipStatusPending}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&pending).Error
		if err != nil {
			return nil, err
		}
	}

	var m models.Membership
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes m if nobody else bumped its version since it was read.
func (r *gormRepository) Save(ctx context.Context, m *models.Membership) error {
	res := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("id = ? AND version = ?", m.ID, m.Version).
		Updates(map[string]interface{}{
			"plan_kind":             m.PlanKind,
			"status":                m.Status,
			"expires_at":            m.ExpiresAt,
			"last_reminder_sent_at": m.LastReminderSentAt,
			"source_payment_id":     m.SourcePaymentID,
			"revoke_reason":         m.RevokeReason,
			"access_dirty":          m.AccessDirty,
			"version":               m.Version + 1,
			"updated_at":            time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	m.Version++
	return nil
}

// ListEnforceable returns the next batch of memberships the enforcement cycle
// must look at: active or grace rows and rows whose access change is pending.
func (r *gormRepository) ListEnforceable(ctx context.Context, afterID uint, limit int) ([]models.Membership, error) {
	var out []models.Membership
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Where("(status IN ? OR access_dirty = ?)",
			[]string{models.MembershipStatusActive, models.MembershipStatusGrace}, true).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *gormRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}
