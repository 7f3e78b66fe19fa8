// Package cascade selects the single authoritative score of a review from
// its available signals by strict priority.
package cascade

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/thomaspryor/broadwayscore/internal/config"
	"github.com/thomaspryor/broadwayscore/internal/model"
	"github.com/thomaspryor/broadwayscore/internal/rating"
)

// Sentinel errors returned by Decide.
var (
	ErrNoSignal        = eris.New("cascade: no scoring signal available")
	ErrOverrideNote    = eris.New("cascade: manual override requires a note")
	ErrOverrideRange   = eris.New("cascade: manual override score out of range")
	ErrUnknownDecision = eris.New("cascade: decision has no score source")
)

// DefaultConfig returns the cascade defaults.
func DefaultConfig() config.CascadeConfig {
	return config.CascadeConfig{
		ExcerptFloor:  500,
		PositiveScore: 80,
		NeutralScore:  60,
		NegativeScore: 40,
	}
}

// Decision is the outcome of running the cascade over one review.
type Decision struct {
	Score       int               `json:"score"`
	Source      model.ScoreSource `json:"source"`
	Confidence  model.Confidence  `json:"confidence"`
	NeedsReview bool              `json:"needs_review"`
	Reason      string            `json:"reason,omitempty"`
	ShortText   bool              `json:"short_text,omitempty"`
}

// Cascade runs the priority tiers. It is stateless and safe for concurrent use.
type Cascade struct {
	cfg config.CascadeConfig
}

// New creates a Cascade.
func New(cfg config.CascadeConfig) *Cascade {
	return &Cascade{cfg: cfg}
}

// Decide walks the tiers top-down and returns the first that produces a
// score:
//
//  1. explicit rating
//  2. manual override (note required)
//  3. ensemble at medium or high confidence and not flagged
//  4. aggregator signal overriding a weak ensemble whose direction it contradicts
//  5. ensemble verbatim as a fallback
//  6. aggregator signal alone when no ensemble exists
//
// An ensemble judged from a short excerpt is treated as low confidence before
// tier 3 is considered, so its final confidence is never above low.
func (c *Cascade) Decide(r *model.Review) (*Decision, error) {
	if r.ExplicitRating != "" {
		if score, ok := rating.Parse(r.ExplicitRating); ok {
			return &Decision{
				Score:      score,
				Source:     model.SourceExplicitRating,
				Confidence: model.ConfidenceHigh,
			}, nil
		}
		zap.L().Debug("cascade: unparseable explicit rating",
			zap.String("review", r.Key().String()),
			zap.String("rating", r.ExplicitRating),
		)
	}

	if o := r.Override; o != nil {
		if o.Note == "" {
			return nil, eris.Wrapf(ErrOverrideNote, "review %s", r.Key())
		}
		if o.Score < 0 || o.Score > 100 {
			return nil, eris.Wrapf(ErrOverrideRange, "review %s: %d", r.Key(), o.Score)
		}
		return &Decision{
			Score:      o.Score,
			Source:     model.SourceManualOverride,
			Confidence: model.ConfidenceHigh,
			Reason:     o.Note,
		}, nil
	}

	short := r.IsShortExcerpt(c.cfg.ExcerptFloor)
	sig := r.AggregatorSignal

	if e := r.Ensemble; e != nil {
		conf := e.Confidence
		if short {
			conf = model.ConfidenceLow
		}

		if conf.Rank() >= model.ConfidenceMedium.Rank() && !e.NeedsReview {
			return &Decision{
				Score:      e.Score,
				Source:     model.SourceEnsemble,
				Confidence: conf,
			}, nil
		}

		if sig != nil && sig.Direction != e.Bucket.Direction() {
			if score, ok := c.signalScore(sig.Direction); ok {
				return &Decision{
					Score:      score,
					Source:     model.SourceAggregatorOverride,
					Confidence: model.ConfidenceMedium,
					Reason: fmt.Sprintf("%s reports %s, ensemble %s (%s)",
						sig.Source, sig.Direction, e.Bucket.Direction(), e.Bucket),
					ShortText: short,
				}, nil
			}
		}

		reason := e.Reason
		if short {
			reason = joinReason(reason, "scored from short excerpt")
		}
		return &Decision{
			Score:       e.Score,
			Source:      model.SourceEnsembleFallback,
			Confidence:  model.MinConfidence(conf, model.ConfidenceLow),
			NeedsReview: e.NeedsReview,
			Reason:      reason,
			ShortText:   short,
		}, nil
	}

	if sig != nil {
		if score, ok := c.signalScore(sig.Direction); ok {
			return &Decision{
				Score:      score,
				Source:     model.SourceAggregatorOnly,
				Confidence: model.ConfidenceLow,
				Reason:     fmt.Sprintf("%s reports %s", sig.Source, sig.Direction),
			}, nil
		}
	}

	return nil, eris.Wrapf(ErrNoSignal, "review %s", r.Key())
}

// Apply writes the decision onto the review and reports whether it changed.
// A score set by an explicit rating or manual override is kept against a
// lower-priority decision while that signal is still on the review; any
// other existing score is replaced, so re-scoring can lower its rank.
func Apply(r *model.Review, d *Decision) (bool, error) {
	if d == nil || d.Source.Priority() == 0 {
		return false, ErrUnknownDecision
	}
	if r.HasScore() && r.ScoreSource.Priority() > d.Source.Priority() && holdsSignal(r) {
		zap.L().Debug("cascade: kept higher-priority score",
			zap.String("review", r.Key().String()),
			zap.String("kept", string(r.ScoreSource)),
			zap.String("offered", string(d.Source)),
		)
		return false, nil
	}

	score := d.Score
	r.Score = &score
	r.ScoreSource = d.Source
	r.Confidence = d.Confidence
	r.NeedsReview = d.NeedsReview
	r.ReviewReason = ""
	if d.NeedsReview {
		r.ReviewReason = d.Reason
	}
	return true, nil
}

// holdsSignal reports whether the review still carries the authoritative
// signal its current score came from.
func holdsSignal(r *model.Review) bool {
	switch r.ScoreSource {
	case model.SourceExplicitRating:
		_, ok := rating.Parse(r.ExplicitRating)
		return ok
	case model.SourceManualOverride:
		return r.Override != nil
	default:
		return false
	}
}

func (c *Cascade) signalScore(d model.Direction) (int, bool) {
	switch d {
	case model.DirectionPositive:
		return c.cfg.PositiveScore, true
	case model.DirectionNeutral:
		return c.cfg.NeutralScore, true
	case model.DirectionNegative:
		return c.cfg.NegativeScore, true
	default:
		return 0, false
	}
}

func joinReason(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
