package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devxp-progression-system/models"
)

func TestComputeXPCoversAllActionTypes(t *testing.T) {
	set := NewActionHandlerSet()
	for _, actionType := range models.AllActionTypes {
		total, _, err := set.ComputeXP(actionType, models.ActionContext{}, models.ActionMetrics{})
		require.NoError(t, err, "action type %s", actionType)
		assert.Positive(t, total, "action type %s", actionType)
	}
}

func TestComputeXPUnknownType(t *testing.T) {
	set := NewActionHandlerSet()
	_, _, err := set.ComputeXP(models.ActionType("bogus"), models.ActionContext{}, models.ActionMetrics{})
	assert.Error(t, err)
}

func TestPushXP(t *testing.T) {
	set := NewActionHandlerSet()

	// single ordinary commit: base only
	total, breakdown, err := set.ComputeXP(models.ActionCodePush, models.ActionContext{}, models.ActionMetrics{
		Commits: 1, ChangedFiles: 2, Additions: 40, Deletions: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)
	assert.Empty(t, breakdown)

	// all push bonuses at once
	total, breakdown, err = set.ComputeXP(models.ActionCodePush, models.ActionContext{}, models.ActionMetrics{
		Commits: 6, ChangedFiles: 14, Additions: 400, Deletions: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120+30+25+50), total)
	assert.Equal(t, int64(30), breakdown["multi_commit"])
	assert.Equal(t, int64(25), breakdown["wide_change"])
	assert.Equal(t, int64(50), breakdown["big_diff"])
}

func TestMergeXP(t *testing.T) {
	set := NewActionHandlerSet()

	total, breakdown, err := set.ComputeXP(models.ActionPullRequestMerge, models.ActionContext{}, models.ActionMetrics{
		TimeToMergeHours: 3.5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(350), total)
	assert.Equal(t, int64(50), breakdown["fast_merge"])

	// slow merges earn base only
	total, breakdown, err = set.ComputeXP(models.ActionPullRequestMerge, models.ActionContext{}, models.ActionMetrics{
		TimeToMergeHours: 72,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), total)
	assert.Empty(t, breakdown)

	// unknown merge time is not "fast"
	total, _, err = set.ComputeXP(models.ActionPullRequestMerge, models.ActionContext{}, models.ActionMetrics{})
	require.NoError(t, err)
	assert.Equal(t, int64(300), total)
}

func TestReviewXP(t *testing.T) {
	set := NewActionHandlerSet()

	total, breakdown, err := set.ComputeXP(models.ActionCodeReviewSubmit,
		models.ActionContext{ReviewState: "changes_requested"},
		models.ActionMetrics{Comments: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(200+60+20), total)
	assert.Equal(t, int64(60), breakdown["thorough_review"])
	assert.Equal(t, int64(20), breakdown["critical_eye"])

	total, _, err = set.ComputeXP(models.ActionCodeReviewSubmit,
		models.ActionContext{ReviewState: "approved"},
		models.ActionMetrics{})
	require.NoError(t, err)
	assert.Equal(t, int64(200), total)
}

func TestReleaseXP(t *testing.T) {
	set := NewActionHandlerSet()

	total, _, err := set.ComputeXP(models.ActionReleasePublish, models.ActionContext{}, models.ActionMetrics{})
	require.NoError(t, err)
	assert.Equal(t, int64(450), total)

	total, breakdown, err := set.ComputeXP(models.ActionReleasePublish, models.ActionContext{}, models.ActionMetrics{Prerelease: true})
	require.NoError(t, err)
	assert.Equal(t, int64(400), total)
	assert.Empty(t, breakdown)
}

func TestComputeXPDeterministic(t *testing.T) {
	set := NewActionHandlerSet()
	metrics := models.ActionMetrics{Commits: 5, ChangedFiles: 11, Additions: 300, Deletions: 250}

	first, _, err := set.ComputeXP(models.ActionCodePush, models.ActionContext{}, metrics)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, _, err := set.ComputeXP(models.ActionCodePush, models.ActionContext{}, metrics)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
