package cascade

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

func ensembleResult(b model.Bucket, score int, conf model.Confidence, flagged bool) *model.EnsembleResult {
	return &model.EnsembleResult{
		Bucket:      b,
		Score:       score,
		Confidence:  conf,
		Source:      model.EnsembleMajority,
		NeedsReview: flagged,
	}
}

func fullReview() *model.Review {
	return &model.Review{
		ShowID:      "hamilton",
		OutletID:    "new-york-times",
		CriticID:    "ben-brantley",
		ContentTier: model.ContentFull,
		Text:        strings.Repeat("An evening of pure theatrical invention. ", 20),
	}
}

func TestDecide_ExplicitRatingWinsOverEverything(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.ExplicitRating = "B+"
	r.Override = &model.Override{Score: 40, Note: "checked"}
	r.Ensemble = ensembleResult(model.BucketPan, 20, model.ConfidenceHigh, false)
	r.AggregatorSignal = &model.Signal{Direction: model.DirectionNegative, Source: "dtli"}

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, 87, d.Score)
	assert.Equal(t, model.SourceExplicitRating, d.Source)
	assert.Equal(t, model.ConfidenceHigh, d.Confidence)
}

func TestDecide_UnparseableExplicitFallsThrough(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.ExplicitRating = "Critic's Pick"
	r.Ensemble = ensembleResult(model.BucketRave, 90, model.ConfidenceHigh, false)

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, model.SourceEnsemble, d.Source)
}

func TestDecide_ManualOverride(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.Override = &model.Override{Score: 72, Note: "print edition differs from web"}
	r.Ensemble = ensembleResult(model.BucketRave, 90, model.ConfidenceHigh, false)

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, 72, d.Score)
	assert.Equal(t, model.SourceManualOverride, d.Source)
	assert.Equal(t, "print edition differs from web", d.Reason)
}

func TestDecide_OverrideWithoutNoteIsAnError(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.Override = &model.Override{Score: 72}

	_, err := New(DefaultConfig()).Decide(r)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrOverrideNote))
}

func TestDecide_OverrideOutOfRange(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.Override = &model.Override{Score: 120, Note: "typo"}

	_, err := New(DefaultConfig()).Decide(r)
	assert.True(t, eris.Is(err, ErrOverrideRange))
}

func TestDecide_ConfidentEnsemble(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.Ensemble = ensembleResult(model.BucketPositive, 78, model.ConfidenceMedium, false)
	r.AggregatorSignal = &model.Signal{Direction: model.DirectionNegative, Source: "dtli"}

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, model.SourceEnsemble, d.Source)
	assert.Equal(t, 78, d.Score)
	assert.Equal(t, model.ConfidenceMedium, d.Confidence)
}

func TestDecide_AggregatorOverridesContradictedWeakEnsemble(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.Ensemble = ensembleResult(model.BucketMixed, 62, model.ConfidenceLow, true)
	r.AggregatorSignal = &model.Signal{Direction: model.DirectionPositive, Source: "show-score"}

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, model.SourceAggregatorOverride, d.Source)
	assert.Equal(t, 80, d.Score)
	assert.Contains(t, d.Reason, "show-score")
}

func TestDecide_SameDirectionDoesNotOverride(t *testing.T) {
	t.Parallel()

	// A rave and a "positive" thumbs-up agree in direction even though the
	// five-way bucket differs from the aggregator's label.
	r := fullReview()
	r.Ensemble = ensembleResult(model.BucketRave, 88, model.ConfidenceLow, true)
	r.Ensemble.Reason = "outlier gpt is 2+ buckets"
	r.AggregatorSignal = &model.Signal{Direction: model.DirectionPositive, Source: "dtli"}

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, model.SourceEnsembleFallback, d.Source)
	assert.Equal(t, 88, d.Score)
	assert.Equal(t, model.ConfidenceLow, d.Confidence)
	assert.True(t, d.NeedsReview)
	assert.Equal(t, "outlier gpt is 2+ buckets", d.Reason)
}

func TestDecide_EnsembleFallbackWithoutSignal(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.Ensemble = ensembleResult(model.BucketNegative, 45, model.ConfidenceLow, false)

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, model.SourceEnsembleFallback, d.Source)
	assert.Equal(t, 45, d.Score)
}

func TestDecide_ShortExcerptForcesLowConfidence(t *testing.T) {
	t.Parallel()

	r := &model.Review{
		ShowID:      "hamilton",
		OutletID:    "variety",
		CriticID:    "marilyn-stasio",
		ContentTier: model.ContentExcerpt,
		Excerpts:    []string{"A thrilling, necessary evening."},
		Ensemble:    ensembleResult(model.BucketRave, 92, model.ConfidenceHigh, false),
	}

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, 92, d.Score)
	assert.Equal(t, model.ConfidenceLow, d.Confidence)
	assert.Equal(t, model.SourceEnsembleFallback, d.Source)
	assert.True(t, d.ShortText)
}

func TestDecide_ShortExcerptLetsContradictingSignalOverride(t *testing.T) {
	t.Parallel()

	r := &model.Review{
		ContentTier:      model.ContentExcerpt,
		Excerpts:         []string{"Ambitious."},
		Ensemble:         ensembleResult(model.BucketRave, 90, model.ConfidenceHigh, false),
		AggregatorSignal: &model.Signal{Direction: model.DirectionNegative, Source: "dtli"},
	}

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, model.SourceAggregatorOverride, d.Source)
	assert.Equal(t, 40, d.Score)
}

func TestDecide_AggregatorOnly(t *testing.T) {
	t.Parallel()

	r := fullReview()
	r.AggregatorSignal = &model.Signal{Direction: model.DirectionNeutral, Source: "dtli"}

	d, err := New(DefaultConfig()).Decide(r)
	require.NoError(t, err)
	assert.Equal(t, model.SourceAggregatorOnly, d.Source)
	assert.Equal(t, 60, d.Score)
	assert.Equal(t, model.ConfidenceLow, d.Confidence)
}

func TestDecide_NoSignal(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig()).Decide(fullReview())
	assert.True(t, eris.Is(err, ErrNoSignal))
}

func TestApply_NeverDowngrades(t *testing.T) {
	t.Parallel()

	score := 88
	r := fullReview()
	r.Score = &score
	r.ScoreSource = model.SourceManualOverride
	r.Confidence = model.ConfidenceHigh
	r.Override = &model.Override{Score: 88, Note: "critic confirmed"}

	changed, err := Apply(r, &Decision{Score: 50, Source: model.SourceEnsemble, Confidence: model.ConfidenceHigh})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 88, *r.Score)
	assert.Equal(t, model.SourceManualOverride, r.ScoreSource)
}

func TestApply_ReplacesScoreWhoseSignalIsGone(t *testing.T) {
	t.Parallel()

	score := 88
	r := fullReview()
	r.Score = &score
	r.ScoreSource = model.SourceExplicitRating
	r.ExplicitRating = ""

	changed, err := Apply(r, &Decision{Score: 72, Source: model.SourceEnsemble, Confidence: model.ConfidenceMedium})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 72, *r.Score)
	assert.Equal(t, model.SourceEnsemble, r.ScoreSource)
}

func TestApply_RescoreLowersEnsembleRank(t *testing.T) {
	t.Parallel()

	score := 79
	r := fullReview()
	r.Score = &score
	r.ScoreSource = model.SourceEnsemble
	r.Confidence = model.ConfidenceHigh

	changed, err := Apply(r, &Decision{
		Score:       60,
		Source:      model.SourceEnsembleFallback,
		Confidence:  model.ConfidenceLow,
		NeedsReview: true,
		Reason:      "no consensus",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 60, *r.Score)
	assert.Equal(t, model.SourceEnsembleFallback, r.ScoreSource)
	assert.True(t, r.NeedsReview)
	assert.Equal(t, "no consensus", r.ReviewReason)
}

func TestApply_SameOrHigherPriorityReplaces(t *testing.T) {
	t.Parallel()

	score := 60
	r := fullReview()
	r.Score = &score
	r.ScoreSource = model.SourceEnsemble
	r.NeedsReview = true
	r.ReviewReason = "stale"

	changed, err := Apply(r, &Decision{Score: 74, Source: model.SourceEnsemble, Confidence: model.ConfidenceMedium})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 74, *r.Score)
	assert.False(t, r.NeedsReview)
	assert.Empty(t, r.ReviewReason)

	changed, err = Apply(r, &Decision{Score: 87, Source: model.SourceExplicitRating, Confidence: model.ConfidenceHigh})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.SourceExplicitRating, r.ScoreSource)
}

func TestApply_FlaggedDecisionKeepsReason(t *testing.T) {
	t.Parallel()

	r := fullReview()
	changed, err := Apply(r, &Decision{
		Score:       60,
		Source:      model.SourceEnsembleFallback,
		Confidence:  model.ConfidenceLow,
		NeedsReview: true,
		Reason:      "all models failed",
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, r.NeedsReview)
	assert.Equal(t, "all models failed", r.ReviewReason)
}

func TestApply_RejectsEmptyDecision(t *testing.T) {
	t.Parallel()

	_, err := Apply(fullReview(), &Decision{Score: 50})
	assert.ErrorIs(t, err, ErrUnknownDecision)
}
