package engagement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/storyloop/dailystories/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoryInput is the admin-facing payload for creating a story.
type StoryInput struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Excerpt     string     `json:"excerpt"`
	CategoryID  *string    `json:"category_id"`
	TagNames    []string   `json:"tags"`
	Active      bool       `json:"active"`
	ActiveFrom  *time.Time `json:"active_from"`
	ActiveUntil *time.Time `json:"active_until"`
}

// CreateStory persists a new story with its tags. Tags are created on
// first use, matched by name afterwards. The initial publication state is
// recorded in the status history when the story starts out active.
func (s *Service) CreateStory(ctx context.Context, input StoryInput) (*model.Story, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "story title is required")
	}

	activeFrom := time.Now()
	if input.ActiveFrom != nil {
		activeFrom = *input.ActiveFrom
	}

	story := model.Story{
		Id:          uuid.New().String(),
		Title:       input.Title,
		Content:     input.Content,
		Excerpt:     input.Excerpt,
		CategoryID:  input.CategoryID,
		Active:      input.Active,
		ActiveFrom:  activeFrom,
		ActiveUntil: input.ActiveUntil,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.CategoryID != nil {
			var count int64
			if err := tx.Model(&model.Category{}).Where("id = ?", *input.CategoryID).Count(&count).Error; err != nil {
				return transient(err, "load category")
			}
			if count == 0 {
				return errors.Wrapf(ErrNotFound, "category %s", *input.CategoryID)
			}
		}

		for _, name := range input.TagNames {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			tag := model.Tag{Id: uuid.New().String(), Name: name}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoNothing: true,
			}).Create(&tag).Error; err != nil {
				return transient(err, "upsert tag")
			}
			var existing model.Tag
			if err := tx.Where("name = ?", name).First(&existing).Error; err != nil {
				return transient(err, "load tag")
			}
			story.Tags = append(story.Tags, &existing)
		}

		if err := tx.Create(&story).Error; err != nil {
			return transient(err, "insert story")
		}

		if story.Active {
			history := model.StoryStatusHistory{
				Id:         uuid.New().String(),
				StoryID:    story.Id,
				FromActive: false,
				ToActive:   true,
				ChangedBy:  "admin",
			}
			if err := tx.Create(&history).Error; err != nil {
				return transient(err, "append status history")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &story, nil
}
