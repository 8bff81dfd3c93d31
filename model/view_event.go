package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

ViewEvent is one deduplicated story view.

MemberID is null for anonymous readers; attribution then falls back to
DeviceID and finally IpAddress. The dedup rule on ingestion queries this
table by (story, attribution key, viewed_at > now - window), hence the
composite indexes per attribution column.

A view that falls inside the dedup window of an earlier view from the same
attribution key is never inserted; only the first view in a window exists
as a row.

*/

type ViewEvent struct {
	Id        string  `gorm:"primaryKey"`
	StoryID   string  `gorm:"not null;index:idx_view_events_story_member;index:idx_view_events_story_device;index:idx_view_events_story_ip;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Story     *Story  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	MemberID  *string `gorm:"index:idx_view_events_story_member"`
	DeviceID  *string `gorm:"index:idx_view_events_story_device"`
	SessionID string
	ViewedAt  time.Time `gorm:"not null;index"`
	UserAgent string
	IpAddress string `gorm:"index:idx_view_events_story_ip"`
	Referrer  string
	Metadata  datatypes.JSON
}

func (ViewEvent) TableName() string {
	return "view_events"
}
