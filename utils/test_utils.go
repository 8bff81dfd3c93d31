package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storyloop/dailystories/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// create a member, do sanity checks and return its Id
func TestCreateMember(t *testing.T, db *gorm.DB, name string) string {
	t.Helper()
	member := model.Member{
		Id:          uuid.New().String(),
		Email:       name + "@example.com",
		DisplayName: name,
		Status:      model.MemberStatusActive,
	}
	require.NoError(t, db.Create(&member).Error)
	return member.Id
}

// create a story inside its publication window and return its Id
func TestCreatePublishedStory(t *testing.T, db *gorm.DB, title string) string {
	t.Helper()
	story := model.Story{
		Id:         uuid.New().String(),
		Title:      title,
		Content:    "story body",
		Excerpt:    "story excerpt",
		Active:     true,
		ActiveFrom: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(&story).Error)
	return story.Id
}

// create a story whose publication window already closed and return its Id
func TestCreateExpiredStory(t *testing.T, db *gorm.DB, title string) string {
	t.Helper()
	until := time.Now().Add(-time.Hour)
	story := model.Story{
		Id:          uuid.New().String(),
		Title:       title,
		Content:     "story body",
		Active:      true,
		ActiveFrom:  time.Now().Add(-2 * time.Hour),
		ActiveUntil: &until,
	}
	require.NoError(t, db.Create(&story).Error)
	return story.Id
}
