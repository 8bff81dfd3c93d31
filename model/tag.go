package model

import (
	"time"
)

type Tag struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	Name      string   `gorm:"uniqueIndex"`
	Stories   []*Story `json:"stories" gorm:"many2many:story_tags;"`
}
