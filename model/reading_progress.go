package model

import "time"

/*

ReadingProgress is the single row tracking how far a member has read a
story and how long they have spent on it.

Upsert semantics are asymmetric on purpose: Progress is replaced by every
write (a client resync may legitimately rewind it) while TimeSpentSeconds
only ever accumulates. Progress is clamped to [0,100] before it reaches
the store.

*/

type ReadingProgress struct {
	MemberID         string  `gorm:"primaryKey"`
	Member           *Member `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	StoryID          string  `gorm:"primaryKey"`
	Story            *Story  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Progress         int     `gorm:"not null;default:0;check:progress >= 0 AND progress <= 100"`
	TimeSpentSeconds int64   `gorm:"not null;default:0"`
	LastReadAt       time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ReadingProgress) TableName() string {
	return "reading_progresses"
}
