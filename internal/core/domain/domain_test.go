package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkReadRecordsOnlyTheSettingTransition(t *testing.T) {
	var it Item

	assert.True(t, it.MarkRead(true), "clear to set must be recorded")
	assert.True(t, it.IsRead)

	assert.False(t, it.MarkRead(true), "repeated set stays silent")
	assert.True(t, it.IsRead)

	assert.False(t, it.MarkRead(false), "clearing stays silent")
	assert.False(t, it.IsRead)

	assert.True(t, it.MarkRead(true), "setting again after a clear is recorded")
}

func TestMarkStarredAndArchivedFollowMarkRead(t *testing.T) {
	var it Item

	assert.True(t, it.MarkStarred(true))
	assert.False(t, it.MarkStarred(true))
	assert.False(t, it.MarkStarred(false))
	assert.False(t, it.IsStarred)

	assert.True(t, it.MarkArchived(true))
	assert.False(t, it.MarkArchived(true))
	assert.False(t, it.MarkArchived(false))
	assert.False(t, it.IsArchived)
}

func TestPriorityFromScoreBuckets(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityFromScore(ScoreHighThreshold))
	assert.Equal(t, PriorityMedium, PriorityFromScore(ScoreMediumThreshold))
	assert.Equal(t, PriorityLow, PriorityFromScore(ScoreLowThreshold))
	assert.Equal(t, PriorityNone, PriorityFromScore(ScoreLowThreshold-1))
}
