package model

import "time"

/*

RatingAggregate is the derived per-story snapshot of its ratings.

It is a cache, never a source of truth: every field is fully derivable
from the story's Rating rows at any time. Writers keep it current with
signed deltas inside the same transaction as the triggering rating write;
RebuildRatingAggregate re-derives it from scratch for repair/backfill.

When the last rating of a story is deleted the row is deleted too, never
kept as zeros: empty state is absence.

AverageRating and VerifiedAverageRating are rounded to 2 decimal places.

*/

type RatingAggregate struct {
	StoryID               string `gorm:"primaryKey"`
	Story                 *Story `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	TotalRatings          int64  `gorm:"not null;default:0"`
	SumRatings            int64  `gorm:"not null;default:0"`
	AverageRating         float64
	Rating1Count          int64 `gorm:"not null;default:0"`
	Rating2Count          int64 `gorm:"not null;default:0"`
	Rating3Count          int64 `gorm:"not null;default:0"`
	Rating4Count          int64 `gorm:"not null;default:0"`
	Rating5Count          int64 `gorm:"not null;default:0"`
	VerifiedRatingsCount  int64 `gorm:"not null;default:0"`
	VerifiedSumRatings    int64 `gorm:"not null;default:0"`
	VerifiedAverageRating float64
	CommentsCount         int64 `gorm:"not null;default:0"`
	LastRatedAt           *time.Time
	UpdatedAt             time.Time
}

// Distribution returns the per-star counts as a map keyed 1..5. The sum of
// the values always equals TotalRatings.
func (a *RatingAggregate) Distribution() map[int]int64 {
	return map[int]int64{
		1: a.Rating1Count,
		2: a.Rating2Count,
		3: a.Rating3Count,
		4: a.Rating4Count,
		5: a.Rating5Count,
	}
}
