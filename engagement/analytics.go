package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/storyloop/dailystories/model"
	"github.com/storyloop/dailystories/utils"
	Logger "github.com/storyloop/dailystories/utils/log"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultViewPeriodDays = 7
	maxViewPeriodDays     = 365

	defaultLeaderboardLimit = 10
	defaultMinRatings       = 5
	defaultTrendingDays     = 7

	// daily view slope (views/day) beyond which a trend is not flat
	trendSlopeThreshold = 0.5
)

// RatingAnalytics is a story's aggregate snapshot plus its derived
// classification, as served to clients.
type RatingAnalytics struct {
	StoryID               string          `json:"story_id"`
	TotalRatings          int64           `json:"total_ratings"`
	AverageRating         float64         `json:"average_rating"`
	RatingDistribution    map[int]int64   `json:"rating_distribution"`
	VerifiedRatingsCount  int64           `json:"verified_ratings_count"`
	VerifiedAverageRating float64         `json:"verified_average_rating"`
	CommentsCount         int64           `json:"comments_count"`
	LastRatedAt           *time.Time      `json:"last_rated_at"`
	Sentiment             model.Sentiment `json:"sentiment"`
	QualityScore          float64         `json:"quality_score"`
	RecommendationRate    float64         `json:"recommendation_rate"`
}

// DailyViewCount is one day's bucket in a view analytics period.
type DailyViewCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type ViewAnalytics struct {
	StoryID       string           `json:"story_id"`
	PeriodDays    int              `json:"period_days"`
	TotalViews    int64            `json:"total_views"`
	ViewsInPeriod int64            `json:"views_in_period"`
	UniqueViewers int64            `json:"unique_viewers"`
	DailyViews    []DailyViewCount `json:"daily_views"`
	Trend         model.ViewTrend  `json:"trend"`
}

type InteractionAnalytics struct {
	StoryID        string           `json:"story_id"`
	Actions        map[string]int64 `json:"actions"`
	SentimentScore float64          `json:"sentiment_score"`
}

type MemberEngagementStats struct {
	MemberID            string           `json:"member_id"`
	RatingsGiven        int64            `json:"ratings_given"`
	AverageRatingGiven  float64          `json:"average_rating_given"`
	InteractionsByKind  map[string]int64 `json:"interactions_by_kind"`
	StoriesRead         int64            `json:"stories_read"`
	StoriesCompleted    int64            `json:"stories_completed"`
	TotalReadingSeconds int64            `json:"total_reading_seconds"`
}

type LeaderboardEntry struct {
	StoryID       string  `json:"story_id"`
	Title         string  `json:"title"`
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int64   `json:"total_ratings"`
	Views         int64   `json:"views"`
}

type GlobalStats struct {
	TotalStories      int64   `json:"total_stories"`
	TotalMembers      int64   `json:"total_members"`
	TotalViews        int64   `json:"total_views"`
	TotalRatings      int64   `json:"total_ratings"`
	AverageRating     float64 `json:"average_rating"`
	TotalInteractions int64   `json:"total_interactions"`
}

// GetStoryRatingAnalytics serves a story's rating snapshot through the
// cache. A miss reads the aggregate store, never raw rating rows.
func (s *Service) GetStoryRatingAnalytics(ctx context.Context, storyId string) (*RatingAnalytics, error) {
	key := utils.StoryKey(storyId, "rating_analytics")
	var cached RatingAnalytics
	if hit, err := s.cacheGet(ctx, key, &cached); err == nil && hit {
		s.emit("cache.hit", "facet:rating_analytics")
		return &cached, nil
	}
	s.emit("cache.miss", "facet:rating_analytics")

	if err := s.checkStoryExists(ctx, storyId); err != nil {
		return nil, err
	}
	agg, err := s.loadAggregate(ctx, storyId)
	if err != nil {
		return nil, err
	}

	analytics := RatingAnalytics{
		StoryID:            storyId,
		RatingDistribution: map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	if agg != nil {
		if err := copier.Copy(&analytics, agg); err != nil {
			return nil, errors.Wrap(err, "copy aggregate snapshot")
		}
		analytics.StoryID = storyId
		analytics.RatingDistribution = agg.Distribution()
	}
	classification := ClassifyAggregate(agg)
	analytics.Sentiment = classification.Sentiment
	analytics.QualityScore = classification.QualityScore
	analytics.RecommendationRate = classification.RecommendationRate

	s.cacheSetStory(ctx, storyId, key, &analytics, utils.StoryDetailTTL)
	return &analytics, nil
}

// GetStoryViewAnalytics buckets a story's views per day over the period
// and classifies the trend by the regression slope of the buckets.
func (s *Service) GetStoryViewAnalytics(ctx context.Context, storyId string, periodDays int) (*ViewAnalytics, error) {
	if periodDays <= 0 {
		periodDays = defaultViewPeriodDays
	}
	if periodDays > maxViewPeriodDays {
		return nil, errors.Wrapf(ErrInvalidArgument, "period %d days exceeds maximum %d", periodDays, maxViewPeriodDays)
	}

	key := utils.StoryKey(storyId, fmt.Sprintf("view_analytics_%dd", periodDays))
	var cached ViewAnalytics
	if hit, err := s.cacheGet(ctx, key, &cached); err == nil && hit {
		s.emit("cache.hit", "facet:view_analytics")
		return &cached, nil
	}
	s.emit("cache.miss", "facet:view_analytics")

	var story model.Story
	res := s.DB.WithContext(ctx).Where("id = ?", storyId).Limit(1).Find(&story)
	if res.Error != nil {
		return nil, transient(res.Error, "load story")
	}
	if res.RowsAffected == 0 {
		return nil, errors.Wrapf(ErrNotFound, "story %s", storyId)
	}

	// the period covers periodDays calendar days ending today
	since := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(periodDays - 1))

	var buckets []struct {
		Day   time.Time
		Count int64
	}
	if err := s.DB.WithContext(ctx).Model(&model.ViewEvent{}).
		Select("date_trunc('day', viewed_at AT TIME ZONE 'UTC') AS day, count(*) AS count").
		Where("story_id = ? AND viewed_at >= ?", storyId, since).
		Group("day").Order("day").
		Scan(&buckets).Error; err != nil {
		return nil, transient(err, "bucket views")
	}

	var uniqueViewers int64
	if err := s.DB.WithContext(ctx).Model(&model.ViewEvent{}).
		Where("story_id = ?", storyId).
		Distinct("COALESCE(member_id, device_id, ip_address)").
		Count(&uniqueViewers).Error; err != nil {
		return nil, transient(err, "count unique viewers")
	}

	byDay := make(map[string]int64, len(buckets))
	var viewsInPeriod int64
	for _, b := range buckets {
		byDay[b.Day.UTC().Format("2006-01-02")] = b.Count
		viewsInPeriod += b.Count
	}

	daily := make([]DailyViewCount, 0, periodDays)
	counts := make([]float64, 0, periodDays)
	days := make([]float64, 0, periodDays)
	for i := 0; i < periodDays; i++ {
		date := since.AddDate(0, 0, i).Format("2006-01-02")
		count := byDay[date]
		daily = append(daily, DailyViewCount{Date: date, Count: count})
		days = append(days, float64(i))
		counts = append(counts, float64(count))
	}

	analytics := ViewAnalytics{
		StoryID:       storyId,
		PeriodDays:    periodDays,
		TotalViews:    story.Views,
		ViewsInPeriod: viewsInPeriod,
		UniqueViewers: uniqueViewers,
		DailyViews:    daily,
		Trend:         classifyTrend(days, counts),
	}
	s.cacheSetStory(ctx, storyId, key, &analytics, utils.StoryDetailTTL)
	return &analytics, nil
}

// classifyTrend fits daily counts against day index and bands the slope.
func classifyTrend(days []float64, counts []float64) model.ViewTrend {
	if len(days) < 2 {
		return model.ViewTrendFlat
	}
	_, slope := stat.LinearRegression(days, counts, nil, false)
	switch {
	case slope > trendSlopeThreshold:
		return model.ViewTrendRising
	case slope < -trendSlopeThreshold:
		return model.ViewTrendFalling
	default:
		return model.ViewTrendFlat
	}
}

// GetStoryInteractionAnalytics serves per-action counts plus the derived
// interaction sentiment score.
func (s *Service) GetStoryInteractionAnalytics(ctx context.Context, storyId string) (*InteractionAnalytics, error) {
	key := utils.StoryKey(storyId, "interaction_analytics")
	var cached InteractionAnalytics
	if hit, err := s.cacheGet(ctx, key, &cached); err == nil && hit {
		s.emit("cache.hit", "facet:interaction_analytics")
		return &cached, nil
	}
	s.emit("cache.miss", "facet:interaction_analytics")

	if err := s.checkStoryExists(ctx, storyId); err != nil {
		return nil, err
	}

	var rows []struct {
		Action model.InteractionAction
		Count  int64
	}
	if err := s.DB.WithContext(ctx).Model(&model.Interaction{}).
		Select("action, count(*) AS count").
		Where("story_id = ?", storyId).
		Group("action").
		Scan(&rows).Error; err != nil {
		return nil, transient(err, "count interactions")
	}

	counts := make(map[model.InteractionAction]int64, len(rows))
	actions := make(map[string]int64, len(model.AllInteractionAction))
	for _, action := range model.AllInteractionAction {
		actions[action.String()] = 0
	}
	for _, row := range rows {
		counts[row.Action] = row.Count
		actions[row.Action.String()] = row.Count
	}

	analytics := InteractionAnalytics{
		StoryID:        storyId,
		Actions:        actions,
		SentimentScore: InteractionSentimentScore(counts),
	}
	s.cacheSetStory(ctx, storyId, key, &analytics, utils.StoryDetailTTL)
	return &analytics, nil
}

// GetMemberEngagementStats summarizes one member's activity across all
// stories.
func (s *Service) GetMemberEngagementStats(ctx context.Context, memberId string) (*MemberEngagementStats, error) {
	key := utils.MemberKey(memberId)
	var cached MemberEngagementStats
	if hit, err := s.cacheGet(ctx, key, &cached); err == nil && hit {
		s.emit("cache.hit", "facet:member_engagement")
		return &cached, nil
	}
	s.emit("cache.miss", "facet:member_engagement")

	if err := s.checkMemberExists(ctx, memberId); err != nil {
		return nil, err
	}

	stats := MemberEngagementStats{
		MemberID:           memberId,
		InteractionsByKind: map[string]int64{},
	}

	var ratingTotals struct {
		Count int64
		Sum   int64
	}
	if err := s.DB.WithContext(ctx).Model(&model.Rating{}).
		Select("count(*) AS count, COALESCE(sum(rating), 0) AS sum").
		Where("member_id = ?", memberId).
		Scan(&ratingTotals).Error; err != nil {
		return nil, transient(err, "sum member ratings")
	}
	stats.RatingsGiven = ratingTotals.Count
	if ratingTotals.Count > 0 {
		stats.AverageRatingGiven = utils.Round2(float64(ratingTotals.Sum) / float64(ratingTotals.Count))
	}

	var interactionRows []struct {
		Action model.InteractionAction
		Count  int64
	}
	if err := s.DB.WithContext(ctx).Model(&model.Interaction{}).
		Select("action, count(*) AS count").
		Where("member_id = ?", memberId).
		Group("action").
		Scan(&interactionRows).Error; err != nil {
		return nil, transient(err, "count member interactions")
	}
	for _, row := range interactionRows {
		stats.InteractionsByKind[row.Action.String()] = row.Count
	}

	var progressTotals struct {
		StoriesRead      int64
		StoriesCompleted int64
		Seconds          int64
	}
	if err := s.DB.WithContext(ctx).Model(&model.ReadingProgress{}).
		Select("count(*) AS stories_read, count(*) FILTER (WHERE progress = 100) AS stories_completed, COALESCE(sum(time_spent_seconds), 0) AS seconds").
		Where("member_id = ?", memberId).
		Scan(&progressTotals).Error; err != nil {
		return nil, transient(err, "sum member reading progress")
	}
	stats.StoriesRead = progressTotals.StoriesRead
	stats.StoriesCompleted = progressTotals.StoriesCompleted
	stats.TotalReadingSeconds = progressTotals.Seconds

	s.cacheSet(ctx, key, &stats, utils.StoryDetailTTL)
	return &stats, nil
}

// GetTopRatedStories ranks publishable stories by average rating. Only the
// default parameterization is cached under the coarse key; other
// parameter combinations bypass the cache.
func (s *Service) GetTopRatedStories(ctx context.Context, limit int, minRatings int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if minRatings <= 0 {
		minRatings = defaultMinRatings
	}
	cacheable := limit == defaultLeaderboardLimit && minRatings == defaultMinRatings

	if cacheable {
		var cached []LeaderboardEntry
		if hit, err := s.cacheGet(ctx, utils.TopRatedKey, &cached); err == nil && hit {
			s.emit("cache.hit", "facet:top_rated")
			return cached, nil
		}
		s.emit("cache.miss", "facet:top_rated")
	}

	now := time.Now()
	var entries []LeaderboardEntry
	if err := s.DB.WithContext(ctx).Model(&model.RatingAggregate{}).
		Select("rating_aggregates.story_id, stories.title, rating_aggregates.average_rating, rating_aggregates.total_ratings, stories.views").
		Joins("JOIN stories ON stories.id = rating_aggregates.story_id AND stories.deleted_at IS NULL").
		Where("rating_aggregates.total_ratings >= ?", minRatings).
		Where("stories.active = ? AND stories.active_from <= ? AND (stories.active_until IS NULL OR stories.active_until > ?)", true, now, now).
		Order("rating_aggregates.average_rating DESC, rating_aggregates.total_ratings DESC").
		Limit(limit).
		Scan(&entries).Error; err != nil {
		return nil, transient(err, "rank top rated stories")
	}

	if cacheable {
		s.cacheSet(ctx, utils.TopRatedKey, entries, utils.LeaderboardTTL)
	}
	return entries, nil
}

// GetTrendingStories ranks publishable stories by views inside the window.
func (s *Service) GetTrendingStories(ctx context.Context, windowDays int, limit int) ([]LeaderboardEntry, error) {
	if windowDays <= 0 {
		windowDays = defaultTrendingDays
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	cacheable := windowDays == defaultTrendingDays && limit == defaultLeaderboardLimit

	if cacheable {
		var cached []LeaderboardEntry
		if hit, err := s.cacheGet(ctx, utils.TrendingKey, &cached); err == nil && hit {
			s.emit("cache.hit", "facet:trending")
			return cached, nil
		}
		s.emit("cache.miss", "facet:trending")
	}

	now := time.Now()
	since := now.AddDate(0, 0, -windowDays)
	var entries []LeaderboardEntry
	if err := s.DB.WithContext(ctx).Model(&model.ViewEvent{}).
		Select("view_events.story_id, stories.title, stories.views, COALESCE(rating_aggregates.average_rating, 0) AS average_rating, COALESCE(rating_aggregates.total_ratings, 0) AS total_ratings").
		Joins("JOIN stories ON stories.id = view_events.story_id AND stories.deleted_at IS NULL").
		Joins("LEFT JOIN rating_aggregates ON rating_aggregates.story_id = view_events.story_id").
		Where("view_events.viewed_at >= ?", since).
		Where("stories.active = ? AND stories.active_from <= ? AND (stories.active_until IS NULL OR stories.active_until > ?)", true, now, now).
		Group("view_events.story_id, stories.title, stories.views, rating_aggregates.average_rating, rating_aggregates.total_ratings").
		Order("count(*) DESC").
		Limit(limit).
		Scan(&entries).Error; err != nil {
		return nil, transient(err, "rank trending stories")
	}

	if cacheable {
		s.cacheSet(ctx, utils.TrendingKey, entries, utils.LeaderboardTTL)
	}
	return entries, nil
}

// GetGlobalStats serves the platform-wide totals under the coarsest cache
// tier.
func (s *Service) GetGlobalStats(ctx context.Context) (*GlobalStats, error) {
	var cached GlobalStats
	if hit, err := s.cacheGet(ctx, utils.GlobalStatsKey, &cached); err == nil && hit {
		s.emit("cache.hit", "facet:global_stats")
		return &cached, nil
	}
	s.emit("cache.miss", "facet:global_stats")

	var stats GlobalStats
	if err := s.DB.WithContext(ctx).Model(&model.Story{}).Count(&stats.TotalStories).Error; err != nil {
		return nil, transient(err, "count stories")
	}
	if err := s.DB.WithContext(ctx).Model(&model.Member{}).Count(&stats.TotalMembers).Error; err != nil {
		return nil, transient(err, "count members")
	}
	if err := s.DB.WithContext(ctx).Model(&model.Story{}).
		Select("COALESCE(sum(views), 0)").Scan(&stats.TotalViews).Error; err != nil {
		return nil, transient(err, "sum views")
	}

	var ratingTotals struct {
		Count int64
		Sum   int64
	}
	if err := s.DB.WithContext(ctx).Model(&model.Rating{}).
		Select("count(*) AS count, COALESCE(sum(rating), 0) AS sum").
		Scan(&ratingTotals).Error; err != nil {
		return nil, transient(err, "sum ratings")
	}
	stats.TotalRatings = ratingTotals.Count
	if ratingTotals.Count > 0 {
		stats.AverageRating = utils.Round2(float64(ratingTotals.Sum) / float64(ratingTotals.Count))
	}

	if err := s.DB.WithContext(ctx).Model(&model.Interaction{}).Count(&stats.TotalInteractions).Error; err != nil {
		return nil, transient(err, "count interactions")
	}

	s.cacheSet(ctx, utils.GlobalStatsKey, &stats, utils.GlobalStatsTTL)
	return &stats, nil
}

// cache helpers: the cache is strictly a read accelerator, so get/set
// failures degrade to recompute-and-continue instead of surfacing.

func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s.Cache == nil {
		return false, nil
	}
	hit, err := s.Cache.Get(ctx, key, dest)
	if err != nil {
		Logger.Log.Warn("cache read failed for key ", key, ": ", err)
		return false, nil
	}
	return hit, nil
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Set(ctx, key, value, ttl); err != nil {
		Logger.Log.Warn("cache write failed for key ", key, ": ", err)
	}
}

func (s *Service) cacheSetStory(ctx context.Context, storyId string, key string, value interface{}, ttl time.Duration) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.SetStoryScoped(ctx, storyId, key, value, ttl); err != nil {
		Logger.Log.Warn("cache write failed for key ", key, ": ", err)
	}
}
