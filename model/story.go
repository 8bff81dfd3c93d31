package model

import (
	"time"

	"gorm.io/gorm"
)

/*

Story is a single publishable piece of content

Id: primary key
CreatedAt: time when entity is created
DeletedAt: time when entity is deleted

Title: story's title in plain text
Content: story's body in plain text
Excerpt: short teaser shown in listings
CategoryID:
Category: the one category a story belongs to, "belongs-to" relation
Tags: free-form labels, "many-to-many" relation

Active / ActiveFrom / ActiveUntil:
		the publication window. A story is visible to readers only while
		Active is true, ActiveFrom has passed and ActiveUntil (if set) has
		not. Every flip of Active appends a StoryStatusHistory row.

Views: denormalized total view counter, incremented atomically on each
		deduplicated view. The authoritative per-view records live in
		view_events.

*/

type Story struct {
	Id          string `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt
	Title       string
	Content     string
	Excerpt     string
	CategoryID  *string   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Category    *Category `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Tags        []*Tag    `json:"tags" gorm:"many2many:story_tags;"`
	Active      bool
	ActiveFrom  time.Time
	ActiveUntil *time.Time
	Views       int64 `gorm:"not null;default:0"`
}

// IsPublishable reports whether the story is inside its publication window
// at the given instant.
func (s *Story) IsPublishable(now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.ActiveFrom.After(now) {
		return false
	}
	if s.ActiveUntil != nil && !s.ActiveUntil.After(now) {
		return false
	}
	return true
}
