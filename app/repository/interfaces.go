package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// BotUserRepository reads the users the bot knows about.
type BotUserRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.BotUser, error)
	Locale(ctx context.Context, userID int64) (string, error)
	List(ctx context.Context, offset, limit int) ([]models.BotUser, error)
	Count(ctx context.Context) (int64, error)
	CountByLocale(ctx context.Context) (map[string]int64, error)
	SetBlocked(ctx context.Context, userID int64, blocked bool) error
}

// SettingRepository defines the interface for setting operations
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	Reload() (*models.AppSettings, error)
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// Repositories holds all repository instances
type Repositories struct {
	BotUser BotUserRepository
	Setting SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		BotUser: NewBotUserRepository(db),
		Setting: NewSettingRepository(db),
	}
}
