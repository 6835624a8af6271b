package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// DefaultLocale is returned for users the bot has not seen yet.
const DefaultLocale = "es"

// botUserRepository implements the BotUserRepository interface
type botUserRepository struct {
	db *gorm.DB
}

// NewBotUserRepository creates a new bot user repository instance
func NewBotUserRepository(db *gorm.DB) BotUserRepository {
	return &botUserRepository{db: db}
}

func (r *botUserRepository) GetByUserID(ctx context.Context, userID int64) (*models.BotUser, error) {
	var u models.BotUser
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Locale returns the user's language, or DefaultLocale when unknown.
func (r *botUserRepository) Locale(ctx context.Context, userID int64) (string, error) {
	u, err := r.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultLocale, nil
	}
	if err != nil {
		return "", err
	}
	if u.Locale == "" {
		return DefaultLocale, nil
	}
	return u.Locale, nil
}

func (r *botUserRepository) List(ctx context.Context, offset, limit int) ([]models.BotUser, error) {
	var users []models.BotUser
	err := r.db.WithContext(ctx).Order("id ASC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

func (r *botUserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.BotUser{}).Count(&n).Error
	return n, err
}

// CountByLocale counts reachable users per language.
func (r *botUserRepository) CountByLocale(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Locale string
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&models.BotUser{}).
		Select("locale, COUNT(*) AS total").
		Where("is_blocked = ?", false).
		Group("locale").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Locale] = row.Total
	}
	return out, nil
}

// SetBlocked flags a user that can no longer be messaged. Unknown users are
// ignored.
func (r *botUserRepository) SetBlocked(ctx context.Context, userID int64, blocked bool) error {
	return r.db.WithContext(ctx).Model(&models.BotUser{}).
		Where("user_id = ?", userID).
		Update("is_blocked", blocked).Error
}
