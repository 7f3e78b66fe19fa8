package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

func ms(name string, b model.Bucket, score int) *model.ModelScore {
	return &model.ModelScore{Model: name, Bucket: b, Score: score, Confidence: model.ConfidenceHigh}
}

func failed(name string) *model.ModelScore {
	return &model.ModelScore{Model: name, Error: "timeout"}
}

func TestCombine_UnanimousTight(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(
		ms("claude", model.BucketPositive, 78),
		ms("gpt", model.BucketPositive, 80),
		ms("gemini", model.BucketPositive, 82),
	)

	assert.Equal(t, model.EnsembleUnanimous, res.Source)
	assert.Equal(t, model.ConfidenceHigh, res.Confidence)
	assert.Equal(t, model.BucketPositive, res.Bucket)
	assert.Equal(t, 80, res.Score)
	assert.False(t, res.NeedsReview)
	assert.Nil(t, res.Disagreement)
	assert.Len(t, res.Models, 3)
}

func TestCombine_UnanimousWideSpreadUsesMedian(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(
		ms("claude", model.BucketRave, 85),
		ms("gpt", model.BucketRave, 87),
		ms("gemini", model.BucketRave, 100),
	)

	assert.Equal(t, model.EnsembleUnanimous, res.Source)
	assert.Equal(t, model.ConfidenceMedium, res.Confidence)
	assert.Equal(t, 87, res.Score)
	assert.False(t, res.NeedsReview)
}

func TestCombine_MajorityAdjacentOutlierNotFlagged(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(
		ms("claude", model.BucketPositive, 76),
		ms("gpt", model.BucketPositive, 80),
		ms("gemini", model.BucketMixed, 65),
	)

	assert.Equal(t, model.EnsembleMajority, res.Source)
	assert.Equal(t, model.ConfidenceMedium, res.Confidence)
	assert.Equal(t, model.BucketPositive, res.Bucket)
	assert.Equal(t, 78, res.Score)
	assert.False(t, res.NeedsReview)
	require.NotNil(t, res.Outlier)
	assert.Equal(t, "gemini", res.Outlier.Model)
	assert.Equal(t, model.BucketMixed, res.Outlier.Bucket)
	assert.Equal(t, 1, res.Outlier.Distance)
}

func TestCombine_MajorityDistantOutlierFlagged(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(
		ms("claude", model.BucketRave, 90),
		ms("gpt", model.BucketRave, 92),
		ms("gemini", model.BucketNegative, 45),
	)

	assert.Equal(t, model.EnsembleMajority, res.Source)
	assert.True(t, res.NeedsReview)
	assert.Contains(t, res.Reason, "2+ buckets")
	assert.Contains(t, res.Reason, "gemini")
	require.NotNil(t, res.Disagreement)
	assert.Equal(t, model.DisagreeOutlier, res.Disagreement.Kind)
	assert.Equal(t, 3, res.Disagreement.BucketDistance)
	assert.Equal(t, model.SeverityCritical, res.Disagreement.Severity)
	assert.Equal(t, 91, res.Score)
}

func TestCombine_NoConsensus(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(
		ms("claude", model.BucketRave, 88),
		ms("gpt", model.BucketMixed, 60),
		ms("gemini", model.BucketPan, 20),
	)

	assert.Equal(t, model.EnsembleNoConsensus, res.Source)
	assert.Equal(t, 60, res.Score)
	assert.Equal(t, model.BucketMixed, res.Bucket)
	assert.Equal(t, model.ConfidenceLow, res.Confidence)
	assert.True(t, res.NeedsReview)
	assert.Contains(t, res.Reason, "claude=rave(88)")
	assert.Contains(t, res.Reason, "gemini=pan(20)")
	assert.Contains(t, res.Reason, "gpt=mixed(60)")
	require.NotNil(t, res.Disagreement)
	assert.Equal(t, 4, res.Disagreement.BucketDistance)
	assert.Equal(t, 68, res.Disagreement.ScoreDelta)
}

func TestCombine_NoConsensusMedianRebuckets(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(
		ms("a", model.BucketPositive, 70),
		ms("b", model.BucketMixed, 69),
		ms("c", model.BucketRave, 85),
	)

	assert.Equal(t, model.EnsembleNoConsensus, res.Source)
	assert.Equal(t, 70, res.Score)
	assert.Equal(t, model.BucketPositive, res.Bucket)
}

func TestCombine_TwoModelsAgree(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	a := ms("claude", model.BucketPositive, 75)
	b := ms("gpt", model.BucketPositive, 80)
	b.Confidence = model.ConfidenceMedium

	res := v.Combine(a, b, failed("gemini"))

	assert.Equal(t, model.EnsembleTwoModel, res.Source)
	assert.Equal(t, 78, res.Score)
	assert.Equal(t, model.ConfidenceMedium, res.Confidence)
	assert.False(t, res.NeedsReview)
	assert.Len(t, res.Models, 3, "failed slot is still labeled")
}

func TestCombine_TwoModelsAdjacentSmallDelta(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(ms("claude", model.BucketRave, 86), ms("gpt", model.BucketPositive, 80), nil)

	assert.Equal(t, 83, res.Score)
	assert.Equal(t, model.BucketPositive, res.Bucket)
	assert.Equal(t, model.ConfidenceHigh, res.Confidence)
	assert.False(t, res.NeedsReview)
}

func TestCombine_TwoModelsLargeDeltaFlagged(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(ms("claude", model.BucketRave, 95), ms("gpt", model.BucketPositive, 72))

	assert.True(t, res.NeedsReview)
	assert.Equal(t, model.ConfidenceLow, res.Confidence)
	require.NotNil(t, res.Disagreement)
	assert.Equal(t, model.DisagreeTwoModel, res.Disagreement.Kind)
	assert.Equal(t, 23, res.Disagreement.ScoreDelta)
	assert.Equal(t, model.SeverityMedium, res.Disagreement.Severity)
}

func TestCombine_TwoModelsDistantBuckets(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(ms("claude", model.BucketPositive, 70), ms("gpt", model.BucketNegative, 54))

	assert.Equal(t, 62, res.Score)
	assert.Equal(t, model.BucketMixed, res.Bucket)
	assert.True(t, res.NeedsReview)
	assert.Equal(t, model.ConfidenceLow, res.Confidence)
	assert.Equal(t, model.SeverityHigh, res.Disagreement.Severity)
}

func TestCombine_SingleModel(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(nil, ms("gpt", model.BucketPan, 20), failed("claude"))

	assert.Equal(t, model.EnsembleSingleModel, res.Source)
	assert.Equal(t, 20, res.Score)
	assert.Equal(t, model.BucketPan, res.Bucket)
	assert.Equal(t, model.ConfidenceLow, res.Confidence)
	assert.True(t, res.NeedsReview)
	assert.Contains(t, res.Reason, "gpt")
}

func TestCombine_AllFailedReturnsNeutralSentinel(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	res := v.Combine(failed("claude"), failed("gpt"), nil)

	assert.Equal(t, model.EnsembleAllFailed, res.Source)
	assert.Equal(t, 60, res.Score)
	assert.Equal(t, model.BucketMixed, res.Bucket)
	assert.Equal(t, model.ConfidenceLow, res.Confidence)
	assert.True(t, res.NeedsReview)
	assert.Contains(t, res.Reason, "all models failed")
	assert.Equal(t, model.SeverityCritical, res.Disagreement.Severity)

	empty := v.Combine()
	assert.Equal(t, 60, empty.Score)
	assert.True(t, empty.NeedsReview)
}

func TestCombine_OutOfRangeScoreCountsAsMissing(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	bad := &model.ModelScore{Model: "gpt", Bucket: model.BucketRave, Score: 40}
	res := v.Combine(ms("claude", model.BucketPositive, 75), bad)

	assert.Equal(t, model.EnsembleSingleModel, res.Source)
}

func TestCombine_OrderIndependent(t *testing.T) {
	t.Parallel()

	v := New(DefaultConfig())
	a := ms("claude", model.BucketRave, 90)
	b := ms("gpt", model.BucketMixed, 60)
	c := ms("gemini", model.BucketPositive, 75)

	first := v.Combine(a, b, c)
	for _, perm := range [][]*model.ModelScore{{c, b, a}, {b, a, c}, {b, c, a}} {
		got := v.Combine(perm...)
		assert.Equal(t, first, got)
	}
}

func TestCombine_ConfigurableThresholds(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SpreadThreshold = 20
	cfg.NeutralScore = 50
	v := New(cfg)

	res := v.Combine(
		ms("claude", model.BucketRave, 85),
		ms("gpt", model.BucketRave, 87),
		ms("gemini", model.BucketRave, 100),
	)
	assert.Equal(t, model.ConfidenceHigh, res.Confidence)
	assert.Equal(t, 91, res.Score)

	assert.Equal(t, 50, v.Combine().Score)
}
