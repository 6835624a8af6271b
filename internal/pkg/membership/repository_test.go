package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/database/testdb"
)

func TestLockCreatesPendingOnce(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			m, err := NewRepository(tx).Lock(ctx, 77, true)
			require.NoError(t, err)
			assert.Equal(t, int64(77), m.UserID)
			assert.Equal(t, models.MembershipStatusPending, m.Status)
			return nil
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.Membership{}).Where("user_id = ?", 77).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLockWithoutCreate(t *testing.T) {
	db := testdb.New(t)
	_, err := NewRepository(db).Lock(context.Background(), 5, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDetectsVersionConflict(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewRepository(db)

	require.NoError(t, db.Create(&models.Membership{UserID: 9, Status: models.MembershipStatusPending}).Error)
	a, err := repo.Get(ctx, 9)
	require.NoError(t, err)
	b := *a

	a.Status = models.MembershipStatusActive
	a.ExpiresAt = at(t0.Add(day))
	require.NoError(t, repo.Save(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	b.Status = models.MembershipStatusRevoked
	assert.ErrorIs(t, repo.Save(ctx, &b), ErrVersionConflict)

	stored, err := repo.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusActive, stored.Status)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, stored.ExpiresAt.Equal(t0.Add(day)))
}

func TestSaveClearsNullableColumns(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := NewRepository(db)

	require.NoError(t, db.Create(&models.Membership{UserID: 3, Status: models.MembershipStatusActive, PlanKind: models.PlanMonthly, ExpiresAt: at(t0)}).Error)
	m, err := repo.Get(ctx, 3)
	require.NoError(t, err)

	m.PlanKind = models.PlanLifetime
	m.ExpiresAt = nil
	require.NoError(t, repo.Save(ctx, m))

	stored, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, stored.ExpiresAt)
}

func TestListEnforceable(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	rows := []models.Membership{
		{UserID: 1, Status: models.MembershipStatusActive},
		{UserID: 2, Status: models.MembershipStatusPending},
		{UserID: 3, Status: models.MembershipStatusGrace},
		{UserID: 4, Status: models.MembershipStatusExpired},
		{UserID: 5, Status: models.MembershipStatusRevoked, AccessDirty: true},
		{UserID: 6, Status: models.MembershipStatusActive},
	}
	require.NoError(t, db.Create(&rows).Error)

	repo := NewRepository(db)
	first, err := repo.ListEnforceable(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].UserID)
	assert.Equal(t, int64(3), first[1].UserID)

	rest, err := repo.ListEnforceable(ctx, first[1].ID, 10)
	require.NoError(t, err)
	var users []int64
	for _, m := range rest {
		users = append(users, m.UserID)
	}
	assert.Equal(t, []int64{5, 6}, users)
}

func TestCountByStatus(t *testing.T) {
	db := testdb.New(t)
	rows := []models.Membership{
		{UserID: 1, Status: models.MembershipStatusActive},
		{UserID: 2, Status: models.MembershipStatusActive},
		{UserID: 3, Status: models.MembershipStatusExpired},
	}
	require.NoError(t, db.Create(&rows).Error)

	counts, err := NewRepository(db).CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.MembershipStatusActive])
	assert.Equal(t, int64(1), counts[models.MembershipStatusExpired])
}
