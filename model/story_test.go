package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoryIsPublishable(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	open := Story{Active: true, ActiveFrom: yesterday}
	assert.True(t, open.IsPublishable(now))

	inactive := Story{Active: false, ActiveFrom: yesterday}
	assert.False(t, inactive.IsPublishable(now))

	scheduled := Story{Active: true, ActiveFrom: tomorrow}
	assert.False(t, scheduled.IsPublishable(now))

	// the window opens at ActiveFrom inclusive
	opening := Story{Active: true, ActiveFrom: now}
	assert.True(t, opening.IsPublishable(now))

	expired := Story{Active: true, ActiveFrom: yesterday, ActiveUntil: &yesterday}
	assert.False(t, expired.IsPublishable(now))

	// the window closes at ActiveUntil exclusive
	closing := Story{Active: true, ActiveFrom: yesterday, ActiveUntil: &now}
	assert.False(t, closing.IsPublishable(now))

	bounded := Story{Active: true, ActiveFrom: yesterday, ActiveUntil: &tomorrow}
	assert.True(t, bounded.IsPublishable(now))
}
