package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

Interaction is one member's action on one story: like, dislike, bookmark,
share, view or report.

At most one row may exist per (member, story, action); the unique index
enforces it at the storage layer. Toggling (like -> dislike) is a delete
plus insert or an update, never a second row.

*/

type Interaction struct {
	Id        string            `gorm:"primaryKey"`
	MemberID  string            `gorm:"not null;uniqueIndex:idx_interactions_member_story_action"`
	Member    *Member           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	StoryID   string            `gorm:"not null;uniqueIndex:idx_interactions_member_story_action"`
	Story     *Story            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Action    InteractionAction `gorm:"not null;uniqueIndex:idx_interactions_member_story_action"`
	Metadata  datatypes.JSON
	CreatedAt time.Time
}
