package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestCacheStore(t *testing.T) (*CacheStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheStore(client), mr
}

type snapshot struct {
	Value int64 `json:"value"`
}

func TestCacheStoreRoundTrip(t *testing.T) {
	cache, _ := newTestCacheStore(t)
	ctx := context.Background()

	var got snapshot
	hit, err := cache.Get(ctx, "missing", &got)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, cache.Set(ctx, "k", snapshot{Value: 7}, time.Minute))
	hit, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, int64(7), got.Value)
}

func TestCacheStoreCorruptEntryIsMiss(t *testing.T) {
	cache, mr := newTestCacheStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("k", "not json {"))
	var got snapshot
	hit, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestSetStoryScopedRegistersKey(t *testing.T) {
	cache, mr := newTestCacheStore(t)
	ctx := context.Background()

	key := StoryKey("s-1", "rating_analytics")
	require.NoError(t, cache.SetStoryScoped(ctx, "s-1", key, snapshot{Value: 1}, time.Minute))

	members, err := mr.SMembers(storyRegistryKey("s-1"))
	require.NoError(t, err)
	require.Equal(t, []string{key}, members)
	// registry must outlive the keys it tracks
	require.True(t, mr.TTL(storyRegistryKey("s-1")) > mr.TTL(key))
}

func TestInvalidateStoryDropsExactKeySet(t *testing.T) {
	cache, mr := newTestCacheStore(t)
	ctx := context.Background()

	ratingKey := StoryKey("s-1", "rating_analytics")
	viewKey := StoryKey("s-1", "view_analytics_7d")
	otherKey := StoryKey("s-2", "rating_analytics")
	require.NoError(t, cache.SetStoryScoped(ctx, "s-1", ratingKey, snapshot{Value: 1}, time.Minute))
	require.NoError(t, cache.SetStoryScoped(ctx, "s-1", viewKey, snapshot{Value: 2}, time.Minute))
	require.NoError(t, cache.SetStoryScoped(ctx, "s-2", otherKey, snapshot{Value: 3}, time.Minute))
	require.NoError(t, cache.Set(ctx, TopRatedKey, snapshot{Value: 4}, time.Minute))
	require.NoError(t, cache.Set(ctx, TrendingKey, snapshot{Value: 5}, time.Minute))
	require.NoError(t, cache.Set(ctx, GlobalStatsKey, snapshot{Value: 6}, time.Minute))

	require.NoError(t, cache.InvalidateStory(ctx, "s-1"))

	// every registered key of the story and the coarse keys are gone
	for _, key := range []string{ratingKey, viewKey, storyRegistryKey("s-1"), TopRatedKey, TrendingKey, GlobalStatsKey} {
		require.False(t, mr.Exists(key), "key %s should be gone", key)
	}
	// the other story's entry survives
	require.True(t, mr.Exists(otherKey))

	var got snapshot
	hit, err := cache.Get(ctx, otherKey, &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, int64(3), got.Value)
}

func TestInvalidateMember(t *testing.T) {
	cache, mr := newTestCacheStore(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, MemberKey("m-1"), snapshot{Value: 1}, time.Minute))
	require.NoError(t, cache.InvalidateMember(ctx, "m-1"))
	require.False(t, mr.Exists(MemberKey("m-1")))
}
