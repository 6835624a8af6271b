package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	SetClient(c)
	return mr
}

func TestSetGetDelete(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, Set(ctx, "k", 42, time.Minute))
	v, err := GetInt(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	require.NoError(t, Delete(ctx, "k"))
	_, err = Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestDeletePrefix(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, Set(ctx, "segment_count:all:", "3", 0))
	require.NoError(t, Set(ctx, "segment_count:new:es", "1", 0))
	require.NoError(t, Set(ctx, "other", "x", 0))

	n, err := DeletePrefix(ctx, "segment_count:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("other"))
	assert.False(t, mr.Exists("segment_count:all:"))
}
