// Package report builds the human review queue and formats batch results
// for the CLI.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// QueueItem is one review awaiting a human decision.
type QueueItem struct {
	Key            model.ReviewKey        `json:"key"`
	Outlet         string                 `json:"outlet"`
	Critic         string                 `json:"critic"`
	URL            string                 `json:"url,omitempty"`
	Score          *int                   `json:"score,omitempty"`
	Source         model.ScoreSource      `json:"source,omitempty"`
	Confidence     model.Confidence       `json:"confidence,omitempty"`
	Kind           model.DisagreementKind `json:"kind,omitempty"`
	Severity       model.Severity         `json:"severity"`
	BucketDistance int                    `json:"bucket_distance"`
	ScoreDelta     int                    `json:"score_delta"`
	Models         string                 `json:"models,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Queue returns every flagged review, most severe disagreement first. Ties
// break on bucket distance, then score delta, then key.
func Queue(reviews []model.Review) []QueueItem {
	var items []QueueItem
	for i := range reviews {
		r := &reviews[i]
		if !r.NeedsReview {
			continue
		}
		items = append(items, queueItem(r))
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.BucketDistance != b.BucketDistance {
			return a.BucketDistance > b.BucketDistance
		}
		if a.ScoreDelta != b.ScoreDelta {
			return a.ScoreDelta > b.ScoreDelta
		}
		return a.Key.String() < b.Key.String()
	})
	return items
}

func queueItem(r *model.Review) QueueItem {
	it := QueueItem{
		Key:        r.Key(),
		Outlet:     r.OutletName,
		Critic:     r.CriticName,
		URL:        r.URL,
		Score:      r.Score,
		Source:     r.ScoreSource,
		Confidence: r.Confidence,
		Severity:   model.SeverityLow,
		Reason:     r.ReviewReason,
		UpdatedAt:  r.UpdatedAt,
	}
	if it.Outlet == "" {
		it.Outlet = r.OutletID
	}
	if it.Critic == "" {
		it.Critic = r.CriticID
	}

	e := r.Ensemble
	if e == nil {
		return it
	}
	if it.Reason == "" {
		it.Reason = e.Reason
	}
	if d := e.Disagreement; d != nil {
		it.Kind = d.Kind
		it.Severity = d.Severity
		it.BucketDistance = d.BucketDistance
		it.ScoreDelta = d.ScoreDelta
	}
	parts := make([]string, 0, len(e.Models))
	for _, m := range e.Models {
		if m.Error != "" {
			parts = append(parts, m.Model+"=error")
			continue
		}
		parts = append(parts, m.Model+"="+string(m.Bucket))
	}
	it.Models = strings.Join(parts, " ")
	return it
}
