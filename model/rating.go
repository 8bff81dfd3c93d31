package model

import (
	"time"
)

/*

Rating is one member's star rating of one story.

The composite unique index closes the check-then-insert race: a member can
hold at most one rating per story no matter how many requests race. The
public API upserts (update-in-place on re-rate); only the low-level create
path surfaces the uniqueness violation as AlreadyRated.

The rating value is additionally checked at the database so no code path
can persist an out-of-range star count.

*/

type Rating struct {
	Id           string  `gorm:"primaryKey"`
	MemberID     string  `gorm:"not null;uniqueIndex:idx_ratings_member_story"`
	Member       *Member `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	StoryID      string  `gorm:"not null;uniqueIndex:idx_ratings_member_story"`
	Story        *Story  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Rating       int     `gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment      string
	IsVerified   bool `gorm:"not null;default:false"`
	HelpfulCount int  `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
