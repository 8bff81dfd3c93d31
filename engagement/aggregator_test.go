package engagement

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/storyloop/dailystories/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRating(star int, verified bool, comment string, createdAt time.Time) model.Rating {
	return model.Rating{
		Rating:     star,
		IsVerified: verified,
		Comment:    comment,
		CreatedAt:  createdAt,
	}
}

func TestFoldRatings(t *testing.T) {
	now := time.Now()
	ratings := []model.Rating{
		makeRating(5, true, "great", now.Add(-4*time.Hour)),
		makeRating(5, false, "", now.Add(-3*time.Hour)),
		makeRating(4, false, "  ", now.Add(-2*time.Hour)),
		makeRating(3, true, "ok", now.Add(-time.Hour)),
		makeRating(1, false, "bad", now),
	}

	agg := foldRatings("story-1", ratings)

	require.Equal(t, int64(5), agg.TotalRatings)
	require.Equal(t, int64(18), agg.SumRatings)
	require.Equal(t, 3.6, agg.AverageRating)
	require.Equal(t, map[int]int64{1: 1, 2: 0, 3: 1, 4: 1, 5: 2}, agg.Distribution())

	// distribution always sums back to the total
	var sum int64
	for _, count := range agg.Distribution() {
		sum += count
	}
	require.Equal(t, agg.TotalRatings, sum)

	// whitespace-only comments don't count
	require.Equal(t, int64(3), agg.CommentsCount)

	require.Equal(t, int64(2), agg.VerifiedRatingsCount)
	require.Equal(t, 4.0, agg.VerifiedAverageRating)

	require.NotNil(t, agg.LastRatedAt)
	require.True(t, agg.LastRatedAt.Equal(now))
}

func TestFoldRatingsEmpty(t *testing.T) {
	agg := foldRatings("story-1", nil)
	require.Equal(t, int64(0), agg.TotalRatings)
	require.Equal(t, float64(0), agg.AverageRating)
	require.Nil(t, agg.LastRatedAt)
}

// The incremental delta path must always agree with the full fold. Replay
// a deterministic sequence of creates, updates and deletes both ways and
// diff the results.
func TestDeltaMatchesFold(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		var agg model.RatingAggregate
		live := map[int]model.Rating{}
		nextId := 0

		steps := 1 + rng.Intn(40)
		for step := 0; step < steps; step++ {
			switch op := rng.Intn(3); {
			case op == 0 || len(live) == 0: // create
				r := makeRating(1+rng.Intn(5), rng.Intn(2) == 0, pick(rng, "", " ", "nice"), time.Unix(int64(1600000000+nextId), 0))
				live[nextId] = r
				nextId++
				addRating(&agg, &r)
			case op == 1: // update
				id := anyKey(rng, live)
				old := live[id]
				updated := old
				updated.Rating = 1 + rng.Intn(5)
				updated.Comment = pick(rng, "", "changed")
				live[id] = updated
				removeRating(&agg, &old)
				addRating(&agg, &updated)
			default: // delete
				id := anyKey(rng, live)
				old := live[id]
				delete(live, id)
				removeRating(&agg, &old)
			}
		}
		finalizeAggregate(&agg)

		var survivors []model.Rating
		for _, r := range live {
			survivors = append(survivors, r)
		}
		folded := foldRatings("", survivors)

		// LastRatedAt is excluded: a removal delta deliberately leaves it
		// stale, deletes go through the full rebuild in production
		diff := cmp.Diff(folded, agg,
			cmpopts.IgnoreFields(model.RatingAggregate{}, "StoryID", "LastRatedAt", "UpdatedAt"))
		require.Emptyf(t, diff, "trial %d diverged:\n%s", trial, diff)
	}
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.Intn(len(options))]
}

func anyKey(rng *rand.Rand, m map[int]model.Rating) int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys[rng.Intn(len(keys))]
}

func TestSentimentBoundaries(t *testing.T) {
	cases := []struct {
		average float64
		want    model.Sentiment
	}{
		{5.0, model.SentimentExcellent},
		{4.5, model.SentimentExcellent},
		{4.49, model.SentimentVeryGood},
		{4.0, model.SentimentVeryGood},
		{3.99, model.SentimentGood},
		{3.5, model.SentimentGood},
		{3.49, model.SentimentAverage},
		{3.0, model.SentimentAverage},
		{2.99, model.SentimentPoor},
		{2.0, model.SentimentPoor},
		{1.99, model.SentimentTerrible},
		{1.0, model.SentimentTerrible},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, sentimentForAverage(tc.average), "average %v", tc.average)
	}
}

func TestClassifyAggregate(t *testing.T) {
	// empty aggregate is unrated with zero scores
	classification := ClassifyAggregate(nil)
	require.Equal(t, model.SentimentUnrated, classification.Sentiment)
	require.Equal(t, float64(0), classification.QualityScore)
	require.Equal(t, float64(0), classification.RecommendationRate)

	classification = ClassifyAggregate(&model.RatingAggregate{})
	require.Equal(t, model.SentimentUnrated, classification.Sentiment)

	// below the reliability floor the quality score is suppressed
	classification = ClassifyAggregate(&model.RatingAggregate{
		TotalRatings:  4,
		AverageRating: 5.0,
		Rating5Count:  4,
	})
	require.Equal(t, float64(0), classification.QualityScore)
	require.Equal(t, model.SentimentExcellent, classification.Sentiment)

	// at the floor: (4/5)*80 + (5/100)*20 = 65
	classification = ClassifyAggregate(&model.RatingAggregate{
		TotalRatings:  5,
		AverageRating: 4.0,
		Rating4Count:  3,
		Rating5Count:  1,
		Rating1Count:  1,
	})
	require.Equal(t, 65.0, classification.QualityScore)
	require.Equal(t, 80.0, classification.RecommendationRate)

	// volume contribution caps at 100 ratings
	classification = ClassifyAggregate(&model.RatingAggregate{
		TotalRatings:  250,
		AverageRating: 5.0,
		Rating5Count:  250,
	})
	require.Equal(t, 100.0, classification.QualityScore)
}

func TestInteractionSentimentScore(t *testing.T) {
	// empty denominator
	require.Equal(t, float64(0), InteractionSentimentScore(nil))
	require.Equal(t, float64(0), InteractionSentimentScore(map[model.InteractionAction]int64{}))

	// all positive
	score := InteractionSentimentScore(map[model.InteractionAction]int64{
		model.InteractionActionLike: 10,
	})
	require.Equal(t, 100.0, score)

	// mixed: (3+1+1 - 2-1) / (3+1+1+2+1+2) * 100 = 20
	score = InteractionSentimentScore(map[model.InteractionAction]int64{
		model.InteractionActionLike:     3,
		model.InteractionActionBookmark: 1,
		model.InteractionActionShare:    1,
		model.InteractionActionDislike:  2,
		model.InteractionActionReport:   1,
		model.InteractionActionView:     2,
	})
	require.Equal(t, 20.0, score)

	// views alone are neutral ground, score stays 0
	score = InteractionSentimentScore(map[model.InteractionAction]int64{
		model.InteractionActionView: 50,
	})
	require.Equal(t, float64(0), score)
}
