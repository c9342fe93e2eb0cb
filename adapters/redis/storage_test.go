package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campkit/core"
)

// newTestClient spins up a miniredis server and returns a client plus cleanup.
func newTestClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return client, cleanup
}

func TestStore_GetUnknownUser(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "test")
	p, err := store.GetProgress(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, core.UserID("nobody"), p.UserID)
	assert.Equal(t, int64(1), p.Level)
	assert.NotNil(t, p.Badges)
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "test")
	ctx := context.Background()

	p := core.NewUserProgress("camper")
	p.TotalPoints = 230
	p.Level = 3
	p.PhotosShared = 4
	p.CurrentStreak = 2
	p.AddCompletedTrip("trip-1")
	p.AddBadge(core.BadgeExplorer, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	p.AddBadge(core.BadgeRisingStar, time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, store.PutProgress(ctx, p))

	got, err := store.GetProgress(ctx, "camper")
	require.NoError(t, err)
	assert.Equal(t, p.TotalPoints, got.TotalPoints)
	assert.Equal(t, p.PhotosShared, got.PhotosShared)
	assert.Equal(t, p.CompletedTrips, got.CompletedTrips)
	require.Len(t, got.Badges, 2)
	assert.True(t, got.Badges[0].EarnedAt.Equal(p.Badges[0].EarnedAt))

	has, err := store.HasBadge(ctx, "camper", core.BadgeRisingStar)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = store.HasBadge(ctx, "camper", core.BadgeLegend)
	require.NoError(t, err)
	assert.False(t, has)

	keys, err := client.Keys(ctx, "test:camper:camper:*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestStore_RejectsStaleWrite(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "test")
	ctx := context.Background()

	p := core.NewUserProgress("camper")
	p.TotalPoints = 100
	require.NoError(t, store.PutProgress(ctx, p))

	older := p
	older.TotalPoints = 40
	err := store.PutProgress(ctx, older)
	assert.ErrorIs(t, err, ErrStaleProgress)

	got, err := store.GetProgress(ctx, "camper")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.TotalPoints)

	// equal totals are allowed, e.g. a completed trip adds no points
	p.AddCompletedTrip("trip-9")
	require.NoError(t, store.PutProgress(ctx, p))
}

func TestStore_EmptyUser(t *testing.T) {
	store := &Store{}
	err := store.PutProgress(context.Background(), core.UserProgress{})
	assert.ErrorIs(t, err, core.ErrEmptyUserID)
}

func TestLeaderboard(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	lb := NewLeaderboard(client, "test", nil)
	lb.Update("a", 10)
	lb.Update("b", 30)
	lb.Update("c", 20)
	lb.Update("a", 40)

	top := lb.TopN(2)
	require.Len(t, top, 2)
	assert.Equal(t, core.UserID("a"), top[0].User)
	assert.Equal(t, int64(40), top[0].Points)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, core.UserID("b"), top[1].User)

	e, ok := lb.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, e.Rank)
	assert.Equal(t, int64(20), e.Points)

	lb.Remove("c")
	_, ok = lb.Get("c")
	assert.False(t, ok)
	assert.Nil(t, lb.TopN(0))
}
