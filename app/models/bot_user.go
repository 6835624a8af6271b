package models

import "time"

// BotUser is a user known to the bot. The onboarding flow owns this table;
// this service only reads it to resolve locales and broadcast recipients.
type BotUser struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:ux_bot_users_user_id" json:"user_id"`
	Username  string    `gorm:"type:varchar(64);not null;default:''" json:"username"`
	Locale    string    `gorm:"type:varchar(10);not null;default:'es';index" json:"locale"`
	IsBlocked bool      `gorm:"not null;default:false" json:"is_blocked"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
