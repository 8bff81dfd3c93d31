package model

import "time"

/*

StoryStatusHistory is an append-only record of publication state changes.
One row per flip of Story.Active, written in the same transaction as the
flip itself. Rows are never updated or deleted except by story cascade.

*/

type StoryStatusHistory struct {
	Id         string `gorm:"primaryKey"`
	StoryID    string `gorm:"not null;index;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Story      *Story `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	FromActive bool
	ToActive   bool
	ChangedBy  string
	CreatedAt  time.Time
}

func (StoryStatusHistory) TableName() string {
	return "story_status_histories"
}
