package model

import (
	"time"

	"gorm.io/gorm"
)

type Category struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt
	Name      string `gorm:"uniqueIndex"`
	Slug      string
}
