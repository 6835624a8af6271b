package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/cache"
)

const (
	segmentCachePrefix = "segment_count:"
	segmentCacheTTL    = time.Hour
)

type recipient struct {
	ID     uint
	UserID int64
}

// segmentScope restricts a bot_users query joined with memberships to the
// users of segment.
func segmentScope(segment, locale string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Table("bot_users").
			Joins("LEFT JOIN memberships ON memberships.user_id = bot_users.user_id").
			Where("bot_users.is_blocked = ?", false)
		if locale != "" {
			db = db.Where("bot_users.locale = ?", locale)
		}
		switch segment {
		case models.SegmentNew:
			db = db.Where("(memberships.id IS NULL OR memberships.status = ?)", models.MembershipStatusPending)
		case models.SegmentActive:
			db = db.Where("memberships.status IN ?", []string{models.MembershipStatusActive, models.MembershipStatusGrace})
		case models.SegmentExpired:
			db = db.Where("memberships.status IN ?", []string{models.MembershipStatusExpired, models.MembershipStatusRevoked})
		}
		return db
	}
}

func (d *Dispatcher) recipients(ctx context.Context, job *models.BroadcastJob, limit int) ([]recipient, error) {
	var out []recipient
	err := d.db.WithContext(ctx).
		Scopes(segmentScope(job.Segment, job.LocaleFilter)).
		Select("bot_users.id AS id, bot_users.user_id AS user_id").
		Where("bot_users.id > ?", job.Cursor).
		Order("bot_users.id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// SegmentCount returns how many users a broadcast to segment would reach.
// Counts are cached in Redis for an hour when a cache client is configured.
func (d *Dispatcher) SegmentCount(ctx context.Context, segment, locale string) (int64, error) {
	segment = strings.ToLower(strings.TrimSpace(segment))
	if !models.IsValidSegment(segment) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSegment, segment)
	}
	locale = strings.ToLower(strings.TrimSpace(locale))
	key := segmentCachePrefix + segment + ":" + locale

	useCache := cache.GetClient() != nil
	if useCache {
		cached, err := cache.Get(ctx, key)
		if err == nil {
			if n, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
				return n, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Warnf("[Broadcast] segment cache read failed: %v", err)
		}
	}

	var count int64
	if err := d.db.WithContext(ctx).Scopes(segmentScope(segment, locale)).Count(&count).Error; err != nil {
		return 0, err
	}

	if useCache {
		if err := cache.Set(ctx, key, count, segmentCacheTTL); err != nil {
			log.Warnf("[Broadcast] segment cache write failed: %v", err)
		}
	}
	return count, nil
}

// ClearSegmentCache drops every cached segment count.
func (d *Dispatcher) ClearSegmentCache(ctx context.Context) (int, error) {
	if cache.GetClient() == nil {
		return 0, nil
	}
	n, err := cache.DeletePrefix(ctx, segmentCachePrefix)
	if err != nil {
		return n, err
	}
	log.Debugf("[Broadcast] Cleared %d segment cache entries", n)
	return n, nil
}
