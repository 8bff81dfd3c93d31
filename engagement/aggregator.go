package engagement

import (
	"strings"
	"time"

	"github.com/storyloop/dailystories/model"
	"github.com/storyloop/dailystories/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// qualityReliabilityFloor is the minimum sample size below which the
// quality score is suppressed (reported as 0) rather than computed from
// too few ratings.
const qualityReliabilityFloor = 5

/*

The aggregator keeps one RatingAggregate row per story consistent with the
story's Rating rows.

Two equivalent implementations exist on purpose:

  - foldRatings: the full fold over all rating rows. Deterministic pure
    function; used by RebuildRatingAggregate for repair/backfill and after
    deletes (a removal delta cannot recover last_rated_at without a scan).
  - applyRatingDelta: the signed-delta incremental update (old value
    removed, new value added) applied inside the same transaction as the
    triggering rating write. Primary path for creates and updates.

A property test asserts the two always agree.

*/

// foldRatings folds a story's full rating set into its aggregate snapshot.
// Returns a zero-total aggregate for an empty set; callers translate that
// into row absence.
func foldRatings(storyId string, ratings []model.Rating) model.RatingAggregate {
	agg := model.RatingAggregate{StoryID: storyId}
	for i := range ratings {
		r := &ratings[i]
		addRating(&agg, r)
	}
	finalizeAggregate(&agg)
	return agg
}

func addRating(agg *model.RatingAggregate, r *model.Rating) {
	agg.TotalRatings++
	agg.SumRatings += int64(r.Rating)
	bumpStarCount(agg, r.Rating, 1)
	if r.IsVerified {
		agg.VerifiedRatingsCount++
		agg.VerifiedSumRatings += int64(r.Rating)
	}
	if strings.TrimSpace(r.Comment) != "" {
		agg.CommentsCount++
	}
	if agg.LastRatedAt == nil || r.CreatedAt.After(*agg.LastRatedAt) {
		t := r.CreatedAt
		agg.LastRatedAt = &t
	}
}

func removeRating(agg *model.RatingAggregate, r *model.Rating) {
	agg.TotalRatings--
	agg.SumRatings -= int64(r.Rating)
	bumpStarCount(agg, r.Rating, -1)
	if r.IsVerified {
		agg.VerifiedRatingsCount--
		agg.VerifiedSumRatings -= int64(r.Rating)
	}
	if strings.TrimSpace(r.Comment) != "" {
		agg.CommentsCount--
	}
	// LastRatedAt is intentionally untouched: recovering the new maximum
	// needs a scan, which is what RebuildRatingAggregate is for.
}

func bumpStarCount(agg *model.RatingAggregate, star int, delta int64) {
	switch star {
	case 1:
		agg.Rating1Count += delta
	case 2:
		agg.Rating2Count += delta
	case 3:
		agg.Rating3Count += delta
	case 4:
		agg.Rating4Count += delta
	case 5:
		agg.Rating5Count += delta
	}
}

// finalizeAggregate re-derives the rounded averages from the running sums.
func finalizeAggregate(agg *model.RatingAggregate) {
	if agg.TotalRatings > 0 {
		agg.AverageRating = utils.Round2(float64(agg.SumRatings) / float64(agg.TotalRatings))
	} else {
		agg.AverageRating = 0
	}
	if agg.VerifiedRatingsCount > 0 {
		agg.VerifiedAverageRating = utils.Round2(float64(agg.VerifiedSumRatings) / float64(agg.VerifiedRatingsCount))
	} else {
		agg.VerifiedAverageRating = 0
	}
}

// applyRatingDelta updates the story's aggregate row for one rating write:
// old == nil for a create, next == nil for a delete, both set for an
// update. Runs inside the caller's transaction; the SELECT ... FOR UPDATE
// on the aggregate row serializes concurrent delta appliers per story.
func applyRatingDelta(tx *gorm.DB, storyId string, old *model.Rating, next *model.Rating) error {
	var agg model.RatingAggregate
	res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("story_id = ?", storyId).
		Limit(1).
		Find(&agg)
	if res.Error != nil {
		return transient(res.Error, "load rating aggregate")
	}
	if res.RowsAffected == 0 {
		// no row to apply the delta against: either this is the story's
		// first rating or the aggregate drifted away. The caller already
		// wrote the rating row, so a rescan covers both.
		return RebuildRatingAggregate(tx, storyId)
	}
	agg.StoryID = storyId

	if old != nil {
		removeRating(&agg, old)
	}
	if next != nil {
		addRating(&agg, next)
	}
	finalizeAggregate(&agg)

	if agg.TotalRatings <= 0 {
		// empty state = absence, never a zeroed row
		if err := tx.Where("story_id = ?", storyId).Delete(&model.RatingAggregate{}).Error; err != nil {
			return transient(err, "delete empty rating aggregate")
		}
		return nil
	}

	agg.UpdatedAt = time.Now()
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "story_id"}},
		UpdateAll: true,
	}).Create(&agg).Error; err != nil {
		return transient(err, "upsert rating aggregate")
	}
	return nil
}

// RebuildRatingAggregate re-derives a story's aggregate from scratch by
// scanning all its ratings. Used for repair/backfill and after deletes.
// Must run inside the same transaction as the write that triggered it.
func RebuildRatingAggregate(tx *gorm.DB, storyId string) error {
	var ratings []model.Rating
	if err := tx.Where("story_id = ?", storyId).Find(&ratings).Error; err != nil {
		return transient(err, "scan ratings for rebuild")
	}

	if len(ratings) == 0 {
		if err := tx.Where("story_id = ?", storyId).Delete(&model.RatingAggregate{}).Error; err != nil {
			return transient(err, "delete empty rating aggregate")
		}
		return nil
	}

	agg := foldRatings(storyId, ratings)
	agg.UpdatedAt = time.Now()
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "story_id"}},
		UpdateAll: true,
	}).Create(&agg).Error; err != nil {
		return transient(err, "upsert rating aggregate")
	}
	return nil
}

// RatingClassification is derived from the aggregate on read; it is never
// stored beyond the cache.
type RatingClassification struct {
	Sentiment          model.Sentiment `json:"sentiment"`
	QualityScore       float64         `json:"quality_score"`
	RecommendationRate float64         `json:"recommendation_rate"`
}

// ClassifyAggregate derives sentiment, quality score and recommendation
// rate from an aggregate snapshot. A nil or empty aggregate classifies as
// unrated with zero scores.
func ClassifyAggregate(agg *model.RatingAggregate) RatingClassification {
	if agg == nil || agg.TotalRatings == 0 {
		return RatingClassification{Sentiment: model.SentimentUnrated}
	}
	return RatingClassification{
		Sentiment:          sentimentForAverage(agg.AverageRating),
		QualityScore:       qualityScore(agg.AverageRating, agg.TotalRatings),
		RecommendationRate: recommendationRate(agg),
	}
}

// sentimentForAverage bands the average rating. Lower bounds are
// inclusive: exactly 4.5 is excellent, exactly 4.0 is very_good.
func sentimentForAverage(average float64) model.Sentiment {
	switch {
	case average >= 4.5:
		return model.SentimentExcellent
	case average >= 4.0:
		return model.SentimentVeryGood
	case average >= 3.5:
		return model.SentimentGood
	case average >= 3.0:
		return model.SentimentAverage
	case average >= 2.0:
		return model.SentimentPoor
	default:
		return model.SentimentTerrible
	}
}

// qualityScore blends rating quality (80%) with rating volume (20%),
// suppressed entirely below the reliability floor.
func qualityScore(average float64, total int64) float64 {
	if total < qualityReliabilityFloor {
		return 0
	}
	volume := float64(total) / 100
	if volume > 1 {
		volume = 1
	}
	return utils.Round2(average/5*80 + volume*20)
}

// recommendationRate is the share of 4 and 5 star ratings, in percent.
func recommendationRate(agg *model.RatingAggregate) float64 {
	if agg.TotalRatings == 0 {
		return 0
	}
	return utils.Round2(float64(agg.Rating4Count+agg.Rating5Count) / float64(agg.TotalRatings) * 100)
}

// InteractionSentimentScore scores a story's interaction mix in
// [-100, 100]: likes/bookmarks/shares count positive, dislikes/reports
// negative, views neutral. Zero when there are no interactions at all.
func InteractionSentimentScore(counts map[model.InteractionAction]int64) float64 {
	positive := counts[model.InteractionActionLike] +
		counts[model.InteractionActionBookmark] +
		counts[model.InteractionActionShare]
	negative := counts[model.InteractionActionDislike] +
		counts[model.InteractionActionReport]
	neutral := counts[model.InteractionActionView]

	total := positive + negative + neutral
	if total == 0 {
		return 0
	}
	return utils.Round2(float64(positive-negative) / float64(total) * 100)
}
