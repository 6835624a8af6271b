package membership

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

// Service exposes membership lookups and administrative changes.
type Service struct {
	db        *gorm.DB
	access    *Access
	announcer Announcer
	now       func() time.Time
}

// NewService creates a membership service.
func NewService(db *gorm.DB, access *Access, announcer Announcer) *Service {
	return &Service{
		db:        db,
		access:    access,
		announcer: announcer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the current snapshot of userID's membership.
func (s *Service) Get(ctx context.Context, userID int64) (*models.Membership, error) {
	return NewRepository(s.db).Get(ctx, userID)
}

// Stats returns the number of memberships per status.
func (s *Service) Stats(ctx context.Context) (map[string]int64, error) {
	return NewRepository(s.db).CountByStatus(ctx)
}

// Revoke moves userID to revoked and removes access from every destination.
// A failed gateway call leaves the row marked dirty so the enforcement
// cycle repeats the removal.
func (s *Service) Revoke(ctx context.Context, userID int64, reason string) (*models.Membership, error) {
	if reason == "" {
		reason = "revoked by admin"
	}
	now := s.now()

	var before, after models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		m, err := repo.Lock(ctx, userID, false)
		if err != nil {
			return err
		}
		before = *m
		after = Revoke(*m, reason)

		_, accessErr := s.access.Sync(ctx, userID, after.Status)
		after.AccessDirty = accessErr != nil
		return repo.Save(ctx, &after)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "revoke", Err: err}
	}

	log.Infof("[Membership] User %d revoked (%s), previous status %s", userID, reason, before.Status)
	s.announcer.Announce(ctx, before, after, false, now)
	return &after, nil
}
