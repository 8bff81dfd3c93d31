package model

import "time"

/*

Member is a registered reader of the platform.

Deleting a member does NOT cascade: dependent rows (ratings, interactions,
reading progress, view attributions) are purged explicitly inside one
transaction before the member row itself goes. See engagement.PurgeMember.

*/

type Member struct {
	Id          string `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Email       string `gorm:"uniqueIndex"`
	DisplayName string
	Status      MemberStatus `gorm:"not null;default:'active'"`
}
