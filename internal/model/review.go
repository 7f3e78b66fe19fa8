package model

import (
	"time"
	"unicode/utf8"
)

// UnknownID is the sentinel identity for empty or unusable names.
const UnknownID = "unknown"

// ContentTier describes how much of a review's text is available.
type ContentTier string

const (
	ContentFull    ContentTier = "full"
	ContentPartial ContentTier = "partial"
	ContentExcerpt ContentTier = "excerpt"
	ContentNone    ContentTier = "none"
)

// contentRank orders tiers so merges can keep the most complete one.
func (t ContentTier) rank() int {
	switch t {
	case ContentFull:
		return 3
	case ContentPartial:
		return 2
	case ContentExcerpt:
		return 1
	default:
		return 0
	}
}

// Better reports whether t carries more content than other.
func (t ContentTier) Better(other ContentTier) bool {
	return t.rank() > other.rank()
}

// ScoreSource records which cascade tier produced a review's final score.
type ScoreSource string

const (
	SourceExplicitRating     ScoreSource = "explicit-rating"
	SourceManualOverride     ScoreSource = "manual-override"
	SourceEnsemble           ScoreSource = "ensemble"
	SourceAggregatorOverride ScoreSource = "aggregator-override"
	SourceEnsembleFallback   ScoreSource = "ensemble-fallback"
	SourceAggregatorOnly     ScoreSource = "aggregator-only"
)

// Priority orders score sources; a higher value outranks a lower one.
// Unknown or empty sources have priority 0.
func (s ScoreSource) Priority() int {
	switch s {
	case SourceExplicitRating:
		return 6
	case SourceManualOverride:
		return 5
	case SourceEnsemble:
		return 4
	case SourceAggregatorOverride:
		return 3
	case SourceEnsembleFallback:
		return 2
	case SourceAggregatorOnly:
		return 1
	default:
		return 0
	}
}

// ReviewKey is the canonical identity of a review within the corpus.
type ReviewKey struct {
	ShowID   string `json:"show_id"`
	OutletID string `json:"outlet_id"`
	CriticID string `json:"critic_id"`
}

// String renders the key as show/outlet|critic.
func (k ReviewKey) String() string {
	return k.ShowID + "/" + k.OutletID + "|" + k.CriticID
}

// Signal is an aggregator-reported ternary verdict.
type Signal struct {
	Direction Direction `json:"direction"`
	Source    string    `json:"source"`
}

// Override is a manually verified score. Note is mandatory.
type Override struct {
	Score int       `json:"score"`
	Note  string    `json:"note"`
	By    string    `json:"by,omitempty"`
	At    time.Time `json:"at,omitempty"`
}

// Review is one critic's assessment of one show at one outlet.
type Review struct {
	ShowID   string `json:"show_id"`
	OutletID string `json:"outlet_id"`
	CriticID string `json:"critic_id"`

	OutletName string `json:"outlet_name,omitempty"`
	CriticName string `json:"critic_name,omitempty"`
	URL        string `json:"url,omitempty"`

	Text        string      `json:"text,omitempty"`
	CleanText   string      `json:"clean_text,omitempty"`
	Excerpts    []string    `json:"excerpts,omitempty"`
	ContentTier ContentTier `json:"content_tier"`
	Sources     []string    `json:"sources,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`

	Ensemble         *EnsembleResult `json:"ensemble,omitempty"`
	AggregatorSignal *Signal         `json:"aggregator_signal,omitempty"`
	ExplicitRating   string          `json:"explicit_rating,omitempty"`
	Override         *Override       `json:"override,omitempty"`

	Score          *int        `json:"score,omitempty"`
	ScoreSource    ScoreSource `json:"score_source,omitempty"`
	Confidence     Confidence  `json:"confidence,omitempty"`
	NeedsReview    bool        `json:"needs_review"`
	ReviewReason   string      `json:"review_reason,omitempty"`
	ScoringVersion string      `json:"scoring_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the canonical identity triple of the review.
func (r *Review) Key() ReviewKey {
	return ReviewKey{ShowID: r.ShowID, OutletID: r.OutletID, CriticID: r.CriticID}
}

// ScoredText returns the best available text for scoring: cleaned text, then
// raw text, then the longest excerpt.
func (r *Review) ScoredText() string {
	if r.CleanText != "" {
		return r.CleanText
	}
	if r.Text != "" {
		return r.Text
	}
	var best string
	for _, e := range r.Excerpts {
		if len(e) > len(best) {
			best = e
		}
	}
	return best
}

// IsShortExcerpt reports whether the review would be scored from something
// other than full text that is shorter than floor characters.
func (r *Review) IsShortExcerpt(floor int) bool {
	if r.ContentTier == ContentFull {
		return false
	}
	return utf8.RuneCountInString(r.ScoredText()) < floor
}

// HasScore reports whether a final score has been assigned.
func (r *Review) HasScore() bool {
	return r.Score != nil
}
