// Package config parses the typed process configuration from the merged
// .env and OS environment.
package config

import (
	"fmt"
	"time"

	cenv "github.com/caarlos0/env/v11"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/env"
)

// Config is the full process configuration.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"prod"`
	AppHost string `env:"APP_HOST" envDefault:"0.0.0.0"`
	AppPort string `env:"APP_PORT" envDefault:"4000"`

	DB           DBConfig
	Cache        CacheConfig
	Telegram     TelegramConfig
	Plans        PlanConfig
	Policy       PolicyConfig
	Broadcast    BroadcastConfig
	Scheduler    SchedulerConfig
	Archive      ArchiveConfig
	NATSURL      string `env:"NATS_URL"`
	AdminAPIKey  string `env:"ADMIN_API_KEY"`
	QueueWorkers int    `env:"NOTIFICATION_WORKERS" envDefault:"3"`
}

type DBConfig struct {
	User     string `env:"DB_USER" envDefault:"channelpass"`
	Password string `env:"DB_PASSWORD"`
	Host     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port     string `env:"DB_PORT" envDefault:"3306"`
	Name     string `env:"DB_NAME" envDefault:"channelpass"`
}

// DSN returns the go-sql-driver/mysql data source name.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type CacheConfig struct {
	Host     string `env:"CACHE_HOST" envDefault:"localhost"`
	Port     int    `env:"CACHE_PORT" envDefault:"6379"`
	Password string `env:"CACHE_PASSWORD"`
	DB       int    `env:"CACHE_DB" envDefault:"0"`
}

// Addr returns host:port.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type TelegramConfig struct {
	BotToken       string        `env:"TELEGRAM_BOT_TOKEN"`
	ChannelIDs     []int64       `env:"CHANNEL_IDS" envSeparator:","`
	VIPGroupID     int64         `env:"VIP_GROUP_ID"`
	AdminIDs       []int64       `env:"ADMIN_IDS" envSeparator:","`
	RequestTimeout time.Duration `env:"TELEGRAM_REQUEST_TIMEOUT" envDefault:"10s"`
	MaxRetries     uint64        `env:"TELEGRAM_MAX_RETRIES" envDefault:"3"`
}

// Destinations returns every gated chat a membership grants access to.
func (c TelegramConfig) Destinations() []int64 {
	out := make([]int64, 0, len(c.ChannelIDs)+1)
	out = append(out, c.ChannelIDs...)
	if c.VIPGroupID != 0 {
		out = append(out, c.VIPGroupID)
	}
	return out
}

type PlanConfig struct {
	MonthlyPrice  float64 `env:"PLAN_MONTHLY_PRICE" envDefault:"9.99"`
	AnnualPrice   float64 `env:"PLAN_ANNUAL_PRICE" envDefault:"99.99"`
	LifetimePrice float64 `env:"PLAN_LIFETIME_PRICE" envDefault:"199.99"`
	TrialPrice    float64 `env:"PLAN_TRIAL_PRICE" envDefault:"0"`
	MonthlyDays   int     `env:"PLAN_MONTHLY_DAYS" envDefault:"30"`
	AnnualDays    int     `env:"PLAN_ANNUAL_DAYS" envDefault:"365"`
	TrialDays     int     `env:"PLAN_TRIAL_DAYS" envDefault:"7"`
	Tolerance     float64 `env:"PAYMENT_AMOUNT_TOLERANCE" envDefault:"0.01"`
	Currency      string  `env:"PAYMENT_CURRENCY" envDefault:"USD"`
}

type PolicyConfig struct {
	GracePeriod      time.Duration `env:"GRACE_PERIOD" envDefault:"12h"`
	ReminderDays     int           `env:"REMINDER_DAYS_BEFORE_EXPIRY" envDefault:"3"`
	ReminderCooldown time.Duration `env:"REMINDER_COOLDOWN" envDefault:"24h"`
}

type BroadcastConfig struct {
	RatePerSecond   int           `env:"BROADCAST_RATE_PER_SECOND" envDefault:"25"`
	BatchSize       int           `env:"BROADCAST_BATCH_SIZE" envDefault:"100"`
	ThrottleRetries uint64        `env:"BROADCAST_THROTTLE_RETRIES" envDefault:"5"`
	SendTimeout     time.Duration `env:"BROADCAST_SEND_TIMEOUT" envDefault:"10s"`
	RetentionDays   int           `env:"BROADCAST_RETENTION_DAYS" envDefault:"30"`
}

type SchedulerConfig struct {
	Enabled      bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	PollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" envDefault:"1s"`
	LeaseTTL     time.Duration `env:"SCHEDULER_LEASE_TTL" envDefault:"30m"`
	InstanceID   string        `env:"SCHEDULER_INSTANCE_ID"`
}

type ArchiveConfig struct {
	Enabled         bool   `env:"S3_ARCHIVE_ENABLED" envDefault:"false"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	BucketName      string `env:"S3_BUCKET_NAME"`
	EndpointURL     string `env:"S3_ENDPOINT_URL"`
	Prefix          string `env:"S3_ARCHIVE_PREFIX" envDefault:"ledger"`
}

// Load parses the configuration from env.Environ().
func Load() (*Config, error) {
	return Parse(env.Environ())
}

// Parse parses the configuration from an explicit environment map.
func Parse(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := cenv.ParseWithOptions(&cfg, cenv.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Policy.GracePeriod < 0 {
		return fmt.Errorf("GRACE_PERIOD must not be negative")
	}
	if c.Broadcast.RatePerSecond <= 0 {
		return fmt.Errorf("BROADCAST_RATE_PER_SECOND must be positive")
	}
	if c.Broadcast.BatchSize <= 0 {
		return fmt.Errorf("BROADCAST_BATCH_SIZE must be positive")
	}
	if c.Plans.Tolerance < 0 {
		return fmt.Errorf("PAYMENT_AMOUNT_TOLERANCE must not be negative")
	}
	if c.Archive.Enabled {
		if c.Archive.AccessKeyID == "" || c.Archive.SecretAccessKey == "" || c.Archive.BucketName == "" {
			return fmt.Errorf("S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY and S3_BUCKET_NAME are required when S3 archive is enabled")
		}
	}
	return nil
}

// IsDev reports whether the process runs in development mode.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// ReminderWindow converts the configured reminder days into a duration.
func (c PolicyConfig) ReminderWindow() time.Duration {
	return time.Duration(c.ReminderDays) * 24 * time.Hour
}
