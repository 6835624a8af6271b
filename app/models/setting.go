package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a runtime setting stored as key/value.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Keys of the operational settings.
const (
	SettingGracePeriodHours       = "grace_period_hours"
	SettingReminderWindowHours    = "reminder_window_hours"
	SettingReminderCooldownHours  = "reminder_cooldown_hours"
	SettingBroadcastRatePerSecond = "broadcast_rate_per_second"
	SettingBroadcastBatchSize     = "broadcast_batch_size"
	SettingEnforcementBatchSize   = "enforcement_batch_size"
	SettingNotificationsEnabled   = "notifications_enabled"
)

// AppSettings holds the operational parameters that admins may change at runtime.
type AppSettings struct {
	GracePeriodHours       int  `json:"grace_period_hours" validate:"min=0,max=720"`
	ReminderWindowHours    int  `json:"reminder_window_hours" validate:"min=1,max=2160"`
	ReminderCooldownHours  int  `json:"reminder_cooldown_hours" validate:"min=1,max=720"`
	BroadcastRatePerSecond int  `json:"broadcast_rate_per_second" validate:"min=1,max=30"`
	BroadcastBatchSize     int  `json:"broadcast_batch_size" validate:"min=1,max=1000"`
	EnforcementBatchSize   int  `json:"enforcement_batch_size" validate:"min=1,max=5000"`
	NotificationsEnabled   bool `json:"notifications_enabled"`
	mu                     sync.RWMutex
}

// DefaultAppSettings returns the built-in defaults.
func DefaultAppSettings() *AppSettings {
	return &AppSettings{
		GracePeriodHours:       12,
		ReminderWindowHours:    72,
		ReminderCooldownHours:  24,
		BroadcastRatePerSecond: 25,
		BroadcastBatchSize:     100,
		EnforcementBatchSize:   200,
		NotificationsEnabled:   true,
	}
}

var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

// GetAppSettings returns the current settings, falling back to defaults
// before LoadSettings ran.
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if appSettings == nil {
		return DefaultAppSettings()
	}
	return appSettings
}

// LoadSettings overlays the settings table on top of defaults and makes the
// result the current settings.
func LoadSettings(db *gorm.DB, defaults *AppSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	if defaults == nil {
		defaults = DefaultAppSettings()
	}
	loaded := defaults.Clone()

	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	for _, setting := range settings {
		switch setting.Key {
		case SettingGracePeriodHours:
			loaded.GracePeriodHours = atoiOr(setting.Value, loaded.GracePeriodHours)
		case SettingReminderWindowHours:
			loaded.ReminderWindowHours = atoiOr(setting.Value, loaded.ReminderWindowHours)
		case SettingReminderCooldownHours:
			loaded.ReminderCooldownHours = atoiOr(setting.Value, loaded.ReminderCooldownHours)
		case SettingBroadcastRatePerSecond:
			loaded.BroadcastRatePerSecond = atoiOr(setting.Value, loaded.BroadcastRatePerSecond)
		case SettingBroadcastBatchSize:
			loaded.BroadcastBatchSize = atoiOr(setting.Value, loaded.BroadcastBatchSize)
		case SettingEnforcementBatchSize:
			loaded.EnforcementBatchSize = atoiOr(setting.Value, loaded.EnforcementBatchSize)
		case SettingNotificationsEnabled:
			loaded.NotificationsEnabled = setting.Value == "true"
		}
	}

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("stored settings invalid: %w", err)
	}
	appSettings = loaded
	return nil
}

// SaveSettings validates and persists settings, then makes them current.
func SaveSettings(db *gorm.DB, settings *AppSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	settingsMap := map[string]string{
		SettingGracePeriodHours:       strconv.Itoa(settings.GracePeriodHours),
		SettingReminderWindowHours:    strconv.Itoa(settings.ReminderWindowHours),
		SettingReminderCooldownHours:  strconv.Itoa(settings.ReminderCooldownHours),
		SettingBroadcastRatePerSecond: strconv.Itoa(settings.BroadcastRatePerSecond),
		SettingBroadcastBatchSize:     strconv.Itoa(settings.BroadcastBatchSize),
		SettingEnforcementBatchSize:   strconv.Itoa(settings.EnforcementBatchSize),
		SettingNotificationsEnabled:   strconv.FormatBool(settings.NotificationsEnabled),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for key, value := range settingsMap {
			var setting Setting
			result := tx.Where("setting_key = ?", key).First(&setting)
			if result.Error != nil {
				if result.Error != gorm.ErrRecordNotFound {
					return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
				}
				setting = Setting{Key: key, Value: value, Type: getSettingType(key)}
				if err := tx.Create(&setting).Error; err != nil {
					return fmt.Errorf("failed to create setting %s: %w", key, err)
				}
				continue
			}
			setting.Value = value
			if err := tx.Save(&setting).Error; err != nil {
				return fmt.Errorf("failed to update setting %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	appSettings = settings.Clone()
	return nil
}

func getSettingType(key string) string {
	switch key {
	case SettingNotificationsEnabled:
		return "boolean"
	case SettingGracePeriodHours, SettingReminderWindowHours, SettingReminderCooldownHours,
		SettingBroadcastRatePerSecond, SettingBroadcastBatchSize, SettingEnforcementBatchSize:
		return "integer"
	default:
		return "string"
	}
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// Validate validates the settings
func (s *AppSettings) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// Clone returns a copy without the embedded lock.
func (s *AppSettings) Clone() *AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &AppSettings{
		GracePeriodHours:       s.GracePeriodHours,
		ReminderWindowHours:    s.ReminderWindowHours,
		ReminderCooldownHours:  s.ReminderCooldownHours,
		BroadcastRatePerSecond: s.BroadcastRatePerSecond,
		BroadcastBatchSize:     s.BroadcastBatchSize,
		EnforcementBatchSize:   s.EnforcementBatchSize,
		NotificationsEnabled:   s.NotificationsEnabled,
	}
}

// GracePeriod returns the grace period as a duration.
func (s *AppSettings) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodHours) * time.Hour
}

// ReminderWindow returns the reminder window as a duration.
func (s *AppSettings) ReminderWindow() time.Duration {
	return time.Duration(s.ReminderWindowHours) * time.Hour
}

// ReminderCooldown returns the reminder cooldown as a duration.
func (s *AppSettings) ReminderCooldown() time.Duration {
	return time.Duration(s.ReminderCooldownHours) * time.Hour
}

// ToJSON converts settings to JSON
func (s *AppSettings) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s)
}

// ResetAppSettings drops the loaded settings so GetAppSettings returns defaults again.
func ResetAppSettings() {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	appSettings = nil
}
