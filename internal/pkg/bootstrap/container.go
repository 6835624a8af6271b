// Package bootstrap wires the services of one process from the parsed
// configuration. The server and the CLI share it.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/app/repository"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/archive"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/billing"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/broadcast"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/cache"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/config"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/database"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/enforcement"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/events"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/membership"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/scheduler"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/telegram"
)

// Container holds the wired services.
type Container struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Publisher events.Publisher
	Gateway   gateway.Gateway
	Sender    messaging.Sender
	Queue     *jobqueue.Queue
	Repos     *repository.Repositories

	Memberships *membership.Service
	Payments    *billing.Service
	Engine      *enforcement.Engine
	Broadcasts  *broadcast.Dispatcher
	Scheduler   *scheduler.Scheduler
	// Archive is nil unless the S3 archive is enabled.
	Archive *archive.Exporter
}

// New connects to MySQL, Redis, NATS and Telegram and builds the services.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	db := database.SetupDatabase(cfg.DB)
	rdb := cache.SetupCache(cfg.Cache)

	if err := models.LoadSettings(db, defaultSettings(cfg)); err != nil {
		return nil, err
	}

	publisher, err := events.New(cfg.NATSURL)
	if err != nil {
		return nil, err
	}

	tg, err := telegram.New(cfg.Telegram)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	c := &Container{
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Publisher: publisher,
		Sender:    tg,
		Repos:     repository.NewRepositories(db),
		Gateway: gateway.NewRetrying(tg, gateway.RetryOptions{
			Timeout:    cfg.Telegram.RequestTimeout,
			MaxRetries: cfg.Telegram.MaxRetries,
		}),
	}

	c.Queue = jobqueue.NewQueue(rdb, tg, cfg.QueueWorkers)
	c.Queue.SetLocaleResolver(c.Repos.BotUser)
	c.Queue.SetEnabled(func() bool { return models.GetAppSettings().NotificationsEnabled })

	access := membership.NewAccess(c.Gateway, cfg.Telegram.Destinations())
	announcer := membership.Announcer{Notifier: c.Queue, Publisher: publisher}

	catalog := billing.NewCatalog(cfg.Plans)
	c.Payments = billing.NewService(db, billing.Options{
		Catalog:   catalog,
		Access:    access,
		Notifier:  c.Queue,
		Publisher: publisher,
		AdminIDs:  cfg.Telegram.AdminIDs,
	})
	c.Memberships = membership.NewService(db, access, announcer)
	c.Engine = enforcement.NewEngine(db, access, announcer)
	c.Broadcasts = broadcast.NewDispatcher(db, broadcast.Options{
		Sender:          tg,
		Publisher:       publisher,
		ThrottleRetries: cfg.Broadcast.ThrottleRetries,
		SendTimeout:     cfg.Broadcast.SendTimeout,
	})
	c.Scheduler = scheduler.New(db, scheduler.Options{
		InstanceID:   cfg.Scheduler.InstanceID,
		PollInterval: cfg.Scheduler.PollInterval,
		LeaseTTL:     cfg.Scheduler.LeaseTTL,
	})

	if cfg.Archive.Enabled {
		uploader, err := archive.NewS3Uploader(ctx, cfg.Archive, cfg.AppEnv)
		if err != nil {
			log.Errorf("[Bootstrap] S3 archive disabled: %v", err)
		} else {
			c.Archive = archive.NewExporter(db, uploader, cfg.Archive.Prefix)
		}
	}

	log.Infof("[Bootstrap] Services ready, %d gated destinations", len(cfg.Telegram.Destinations()))
	return c, nil
}

// Ping checks the database and the cache.
func (c *Container) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Close releases the connections. Background workers must be stopped first.
func (c *Container) Close() {
	if err := c.Publisher.Close(); err != nil {
		log.Warnf("[Bootstrap] Closing event publisher: %v", err)
	}
	if err := c.Redis.Close(); err != nil {
		log.Warnf("[Bootstrap] Closing cache: %v", err)
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// defaultSettings turns the environment configuration into the baseline the
// settings table overrides.
func defaultSettings(cfg *config.Config) *models.AppSettings {
	s := models.DefaultAppSettings()
	s.GracePeriodHours = int(cfg.Policy.GracePeriod / time.Hour)
	s.ReminderWindowHours = int(cfg.Policy.ReminderWindow() / time.Hour)
	s.ReminderCooldownHours = int(cfg.Policy.ReminderCooldown / time.Hour)
	s.BroadcastRatePerSecond = cfg.Broadcast.RatePerSecond
	s.BroadcastBatchSize = cfg.Broadcast.BatchSize
	return s
}
