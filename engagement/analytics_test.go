package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/storyloop/dailystories/model"
	"github.com/storyloop/dailystories/utils"
	"github.com/stretchr/testify/require"
)

func TestClassifyTrend(t *testing.T) {
	require.Equal(t, model.ViewTrendRising, classifyTrend(
		[]float64{0, 1, 2, 3}, []float64{1, 5, 9, 13}))
	require.Equal(t, model.ViewTrendFalling, classifyTrend(
		[]float64{0, 1, 2, 3}, []float64{13, 9, 5, 1}))
	require.Equal(t, model.ViewTrendFlat, classifyTrend(
		[]float64{0, 1, 2, 3}, []float64{4, 4, 4, 4}))
	// too little data is flat by definition
	require.Equal(t, model.ViewTrendFlat, classifyTrend([]float64{0}, []float64{100}))
}

func TestGetStoryRatingAnalytics(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	storyId := utils.TestCreatePublishedStory(t, db, "analyzed story")

	// unrated story still answers, classified as unrated
	analytics, err := svc.GetStoryRatingAnalytics(ctx, storyId)
	require.NoError(t, err)
	require.Equal(t, int64(0), analytics.TotalRatings)
	require.Equal(t, model.SentimentUnrated, analytics.Sentiment)
	require.Equal(t, float64(0), analytics.QualityScore)

	_, err = svc.GetStoryRatingAnalytics(ctx, "no-such-story")
	require.ErrorIs(t, err, ErrNotFound)

	for i, star := range []int{5, 5, 5, 5, 4} {
		memberId := utils.TestCreateMember(t, db, "fan"+string(rune('a'+i)))
		_, err := svc.SubmitRating(ctx, memberId, storyId, star, "loved it")
		require.NoError(t, err)
	}

	analytics, err = svc.GetStoryRatingAnalytics(ctx, storyId)
	require.NoError(t, err)
	require.Equal(t, int64(5), analytics.TotalRatings)
	require.Equal(t, 4.8, analytics.AverageRating)
	require.Equal(t, map[int]int64{1: 0, 2: 0, 3: 0, 4: 1, 5: 4}, analytics.RatingDistribution)
	require.Equal(t, model.SentimentExcellent, analytics.Sentiment)
	require.Equal(t, 100.0, analytics.RecommendationRate)
	require.Equal(t, int64(5), analytics.CommentsCount)
	require.NotNil(t, analytics.LastRatedAt)
}

// A cached read right after a mutating call must reflect the committed
// write, never the entry cached before it.
func TestRatingAnalyticsCacheConsistency(t *testing.T) {
	svc, db := newTestService(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	svc.Cache = utils.NewCacheStore(client)

	ctx := context.Background()
	storyId := utils.TestCreatePublishedStory(t, db, "cached story")
	memberA := utils.TestCreateMember(t, db, "first rater")
	memberB := utils.TestCreateMember(t, db, "second rater")

	_, err := svc.SubmitRating(ctx, memberA, storyId, 5, "")
	require.NoError(t, err)

	// prime the cache and verify the entry landed in the registry
	analytics, err := svc.GetStoryRatingAnalytics(ctx, storyId)
	require.NoError(t, err)
	require.Equal(t, int64(1), analytics.TotalRatings)
	require.True(t, mr.Exists(utils.StoryKey(storyId, "rating_analytics")))

	// the second rating invalidates; the next read misses and recomputes
	_, err = svc.SubmitRating(ctx, memberB, storyId, 3, "")
	require.NoError(t, err)
	require.False(t, mr.Exists(utils.StoryKey(storyId, "rating_analytics")))

	analytics, err = svc.GetStoryRatingAnalytics(ctx, storyId)
	require.NoError(t, err)
	require.Equal(t, int64(2), analytics.TotalRatings)
	require.Equal(t, 4.0, analytics.AverageRating)

	// repeated read is now served from the fresh cache entry
	analytics, err = svc.GetStoryRatingAnalytics(ctx, storyId)
	require.NoError(t, err)
	require.Equal(t, int64(2), analytics.TotalRatings)

	// deleting the second rating invalidates again
	require.NoError(t, svc.DeleteRating(ctx, memberB, storyId))
	analytics, err = svc.GetStoryRatingAnalytics(ctx, storyId)
	require.NoError(t, err)
	require.Equal(t, int64(1), analytics.TotalRatings)
	require.Equal(t, 5.0, analytics.AverageRating)
}

func TestGetStoryViewAnalytics(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	storyId := utils.TestCreatePublishedStory(t, db, "viewed story")

	// plant views across three days from distinct devices
	for day := 0; day < 3; day++ {
		for i := 0; i <= day; i++ {
			deviceId := uuid.New().String()
			event := model.ViewEvent{
				Id:        uuid.New().String(),
				StoryID:   storyId,
				DeviceID:  &deviceId,
				ViewedAt:  time.Now().Add(-time.Duration(day)*24*time.Hour - time.Hour),
				IpAddress: "10.0.0.1",
			}
			require.NoError(t, db.Create(&event).Error)
		}
	}
	require.NoError(t, db.Model(&model.Story{}).Where("id = ?", storyId).Update("views", 6).Error)

	analytics, err := svc.GetStoryViewAnalytics(ctx, storyId, 7)
	require.NoError(t, err)
	require.Equal(t, 7, analytics.PeriodDays)
	require.Len(t, analytics.DailyViews, 7)
	require.Equal(t, int64(6), analytics.TotalViews)
	require.Equal(t, int64(6), analytics.ViewsInPeriod)
	require.Equal(t, int64(6), analytics.UniqueViewers)

	var bucketSum int64
	for _, day := range analytics.DailyViews {
		bucketSum += day.Count
	}
	require.Equal(t, analytics.ViewsInPeriod, bucketSum)

	_, err = svc.GetStoryViewAnalytics(ctx, storyId, 1000)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.GetStoryViewAnalytics(ctx, "no-such-story", 7)
	require.ErrorIs(t, err, ErrNotFound)
}

// Day buckets must land on UTC dates no matter what timezone the database
// session runs in.
func TestGetStoryViewAnalyticsNonUTCSession(t *testing.T) {
	db, dbName := utils.CreateTempDB(t)

	require.NoError(t, db.Exec("ALTER DATABASE "+dbName+" SET timezone TO 'America/Anchorage'").Error)
	tzDB, err := utils.GetCustomizedConnection(dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn, _ := tzDB.DB()
		conn.Close()
	})

	svc := &Service{DB: tzDB, DedupWindow: 30 * time.Minute}
	ctx := context.Background()
	storyId := utils.TestCreatePublishedStory(t, tzDB, "tz story")

	// just past UTC midnight of today, which is still yesterday local time
	// in the session's zone
	deviceId := uuid.New().String()
	event := model.ViewEvent{
		Id:        uuid.New().String(),
		StoryID:   storyId,
		DeviceID:  &deviceId,
		ViewedAt:  time.Now().UTC().Truncate(24 * time.Hour).Add(30 * time.Minute),
		IpAddress: "10.0.0.1",
	}
	require.NoError(t, tzDB.Create(&event).Error)

	analytics, err := svc.GetStoryViewAnalytics(ctx, storyId, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), analytics.ViewsInPeriod)
	require.Len(t, analytics.DailyViews, 7)
	for i, day := range analytics.DailyViews[:6] {
		require.Equal(t, int64(0), day.Count, "day %d", i)
	}
	require.Equal(t, int64(1), analytics.DailyViews[6].Count)
	require.Equal(t, time.Now().UTC().Format("2006-01-02"), analytics.DailyViews[6].Date)
}

func TestGetStoryInteractionAnalytics(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	storyId := utils.TestCreatePublishedStory(t, db, "story")

	for i, action := range []model.InteractionAction{
		model.InteractionActionLike,
		model.InteractionActionLike,
		model.InteractionActionLike,
		model.InteractionActionDislike,
	} {
		memberId := utils.TestCreateMember(t, db, "member"+string(rune('a'+i)))
		// allow two likes from different members
		_, err := svc.RecordInteraction(ctx, memberId, storyId, action, nil)
		require.NoError(t, err)
	}

	analytics, err := svc.GetStoryInteractionAnalytics(ctx, storyId)
	require.NoError(t, err)
	require.Equal(t, int64(3), analytics.Actions["like"])
	require.Equal(t, int64(1), analytics.Actions["dislike"])
	require.Equal(t, int64(0), analytics.Actions["share"])
	// (3 - 1) / 4 * 100
	require.Equal(t, 50.0, analytics.SentimentScore)
}

func TestGetMemberEngagementStats(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	memberId := utils.TestCreateMember(t, db, "busy reader")
	storyA := utils.TestCreatePublishedStory(t, db, "story a")
	storyB := utils.TestCreatePublishedStory(t, db, "story b")

	_, err := svc.SubmitRating(ctx, memberId, storyA, 5, "")
	require.NoError(t, err)
	_, err = svc.SubmitRating(ctx, memberId, storyB, 2, "")
	require.NoError(t, err)
	_, err = svc.RecordInteraction(ctx, memberId, storyA, model.InteractionActionBookmark, nil)
	require.NoError(t, err)
	_, err = svc.UpdateReadingProgress(ctx, memberId, storyA, 100, 300)
	require.NoError(t, err)
	_, err = svc.UpdateReadingProgress(ctx, memberId, storyB, 40, 120)
	require.NoError(t, err)

	stats, err := svc.GetMemberEngagementStats(ctx, memberId)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.RatingsGiven)
	require.Equal(t, 3.5, stats.AverageRatingGiven)
	require.Equal(t, int64(1), stats.InteractionsByKind["bookmark"])
	require.Equal(t, int64(2), stats.StoriesRead)
	require.Equal(t, int64(1), stats.StoriesCompleted)
	require.Equal(t, int64(420), stats.TotalReadingSeconds)

	_, err = svc.GetMemberEngagementStats(ctx, "no-such-member")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetTopRatedStories(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	good := utils.TestCreatePublishedStory(t, db, "good story")
	better := utils.TestCreatePublishedStory(t, db, "better story")
	hidden := utils.TestCreateExpiredStory(t, db, "hidden story")

	for i := 0; i < 5; i++ {
		memberId := utils.TestCreateMember(t, db, "m"+string(rune('a'+i)))
		_, err := svc.SubmitRating(ctx, memberId, good, 3, "")
		require.NoError(t, err)
		_, err = svc.SubmitRating(ctx, memberId, better, 5, "")
		require.NoError(t, err)
		_, err = svc.SubmitRating(ctx, memberId, hidden, 5, "")
		require.NoError(t, err)
	}

	entries, err := svc.GetTopRatedStories(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, better, entries[0].StoryID)
	require.Equal(t, 5.0, entries[0].AverageRating)
	require.Equal(t, good, entries[1].StoryID)

	// below the min-ratings floor nothing qualifies
	entries, err = svc.GetTopRatedStories(ctx, 10, 6)
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestGetGlobalStats(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	storyId := utils.TestCreatePublishedStory(t, db, "story")
	memberId := utils.TestCreateMember(t, db, "member")

	_, err := svc.SubmitRating(ctx, memberId, storyId, 4, "")
	require.NoError(t, err)
	_, err = svc.RecordView(ctx, storyId, Attribution{MemberID: &memberId, IpAddress: "10.0.0.1"}, ViewContext{})
	require.NoError(t, err)

	stats, err := svc.GetGlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalStories)
	require.Equal(t, int64(1), stats.TotalMembers)
	require.Equal(t, int64(1), stats.TotalViews)
	require.Equal(t, int64(1), stats.TotalRatings)
	require.Equal(t, 4.0, stats.AverageRating)
	// the view's auto-upserted `view` interaction counts too
	require.Equal(t, int64(1), stats.TotalInteractions)
}
