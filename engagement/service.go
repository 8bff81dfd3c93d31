package engagement

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/storyloop/dailystories/utils"
	"gorm.io/gorm"
)

const defaultDedupWindowMin = 30

/*

Service is the engagement core: it accepts raw engagement events (views,
ratings, interactions, reading progress), keeps the derived per-story
rating aggregate consistent with them, and serves the cached analytics
reads.

Control flow for every mutation: write the event row, update the derived
aggregate in the same transaction where one exists, then invalidate the
story's cache entries after commit. Reads go through the cache and fall
back to the aggregate store, never to raw event rescans.

Cache and Metrics may be nil; both degrade to no-ops so the write path
never depends on Redis or statsd being up.

*/

type Service struct {
	DB       *gorm.DB
	Cache    *utils.CacheStore
	Metrics  *utils.MetricsClient
	Notifier *ModerationNotifier

	// DedupWindow is the rolling span within which repeated views from the
	// same attribution key collapse into one. Product-configurable, never
	// hardcoded at call sites.
	DedupWindow time.Duration
}

func NewService(db *gorm.DB, cache *utils.CacheStore, metrics *utils.MetricsClient) *Service {
	return &Service{
		DB:          db,
		Cache:       cache,
		Metrics:     metrics,
		Notifier:    NewModerationNotifierFromEnv(),
		DedupWindow: dedupWindowFromEnv(),
	}
}

func dedupWindowFromEnv() time.Duration {
	min := defaultDedupWindowMin
	if raw := os.Getenv("VIEW_DEDUP_WINDOW_MIN"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			min = parsed
		}
	}
	return time.Duration(min) * time.Minute
}

// invalidateStoryCaches drops the story's registered cache keys plus the
// coarse cross-story keys. Called after commit; a failure here is bounded
// by TTL expiry, so it is logged by callers, never propagated.
func (s *Service) invalidateStoryCaches(ctx context.Context, storyId string) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.InvalidateStory(ctx, storyId)
}

func (s *Service) invalidateMemberCaches(ctx context.Context, memberId string) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.InvalidateMember(ctx, memberId)
}

func (s *Service) emit(name string, tags ...string) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.Incr(name, tags...)
}
