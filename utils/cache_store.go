package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

/*

CacheStore mirrors derived engagement snapshots into Redis.

Keys are tiered by volatility:
  - per-story detail (rating analytics, view analytics, interaction summary)
  - cross-story leaderboards (top rated, trending)
  - global platform stats

TTL expiry is only the backstop; invalidation-on-write is the primary
consistency mechanism. Instead of wildcard pattern deletes, every per-story
key is registered in a per-story Redis set, so invalidation deletes the
exact key set. Coarse keys cover many stories and are invalidated
unconditionally on any engagement write.

The cache is a read accelerator only. On a miss callers recompute from the
aggregate store, never from raw events.

*/

const (
	StoryDetailTTL = 5 * time.Minute
	LeaderboardTTL = 15 * time.Minute
	GlobalStatsTTL = 30 * time.Minute

	// registry sets live slightly longer than the keys they track so a
	// registry never expires before its members
	registryTTLSlack = time.Minute

	keyDelimiter = "__"

	TopRatedKey    = "stories" + keyDelimiter + "top_rated"
	TrendingKey    = "stories" + keyDelimiter + "trending"
	GlobalStatsKey = "platform" + keyDelimiter + "stats"
)

type CacheStore struct {
	inner *redis.Client
}

// NewCacheStore wraps an existing redis client. Production code goes
// through GetCacheStore; tests inject a client pointed at a fake server.
func NewCacheStore(inner *redis.Client) *CacheStore {
	return &CacheStore{inner: inner}
}

func GetCacheStore() (*CacheStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &CacheStore{inner: redisClient}, nil
}

// StoryKey builds the concrete cache key for one facet of one story.
func StoryKey(storyId string, facet string) string {
	return "story" + keyDelimiter + storyId + keyDelimiter + facet
}

// MemberKey builds the cache key for a member's engagement snapshot.
func MemberKey(memberId string) string {
	return "member" + keyDelimiter + memberId + keyDelimiter + "engagement"
}

func storyRegistryKey(storyId string) string {
	return "story" + keyDelimiter + storyId + keyDelimiter + "keys"
}

// Get loads a cached snapshot into dest. Returns false on miss, an error
// only on a real store failure.
func (c *CacheStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.inner.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		// a corrupt entry behaves like a miss, the next Set overwrites it
		return false, nil
	}
	return true, nil
}

// Set stores a coarse (non-story-scoped) snapshot with the given TTL.
func (c *CacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.inner.Set(ctx, key, raw, ttl).Err()
}

// SetStoryScoped stores a per-story snapshot and registers its key in the
// story's invalidation registry, so InvalidateStory can delete the exact
// key set later.
func (c *CacheStore) SetStoryScoped(ctx context.Context, storyId string, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	registry := storyRegistryKey(storyId)
	pipe := c.inner.TxPipeline()
	pipe.Set(ctx, key, raw, ttl)
	pipe.SAdd(ctx, registry, key)
	pipe.Expire(ctx, registry, ttl+registryTTLSlack)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateStory drops every registered key of the story plus the coarse
// cross-story keys. Coarse keys cover many stories, so they go
// unconditionally rather than selectively.
func (c *CacheStore) InvalidateStory(ctx context.Context, storyId string) error {
	registry := storyRegistryKey(storyId)
	keys, err := c.inner.SMembers(ctx, registry).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	keys = append(keys, registry, TopRatedKey, TrendingKey, GlobalStatsKey)
	return c.inner.Del(ctx, keys...).Err()
}

// InvalidateMember drops a member's cached engagement snapshot.
func (c *CacheStore) InvalidateMember(ctx context.Context, memberId string) error {
	return c.inner.Del(ctx, MemberKey(memberId)).Err()
}
