package dedup

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// Merge folds incoming into existing, where both describe the same review.
//
//   - the longer text wins; replacing the text marks the score stale by
//     clearing the scoring version
//   - excerpts and contributing sources are unioned
//   - the most complete URL is kept
//   - aggregator verdict, explicit rating and ensemble are only filled when
//     existing lacks them
//   - an override replaces an existing one when it is newer and differs
//   - a new or replaced verdict, rating or override marks the score stale
//   - an assigned score is only replaced by one from a strictly higher
//     priority source, together with its provenance
//
// notes describes replacements that discarded a stored value.
func Merge(existing, incoming model.Review) (out model.Review, notes []string) {
	out = existing

	if longer(incoming.Text, out.Text) {
		out.Text = incoming.Text
		out.ScoringVersion = ""
	}
	if longer(incoming.CleanText, out.CleanText) {
		out.CleanText = incoming.CleanText
		out.ScoringVersion = ""
	}
	if incoming.ContentTier.Better(out.ContentTier) {
		out.ContentTier = incoming.ContentTier
	}
	out.Excerpts = union(out.Excerpts, incoming.Excerpts)
	out.Sources = union(out.Sources, incoming.Sources)
	out.URL = bestURL(out.URL, incoming.URL)

	if longer(incoming.OutletName, out.OutletName) {
		out.OutletName = incoming.OutletName
	}
	if longer(incoming.CriticName, out.CriticName) {
		out.CriticName = incoming.CriticName
	}
	if out.PublishedAt == nil {
		out.PublishedAt = incoming.PublishedAt
	}

	if out.AggregatorSignal == nil && incoming.AggregatorSignal != nil {
		out.AggregatorSignal = incoming.AggregatorSignal
		out.ScoringVersion = ""
	}
	if out.ExplicitRating == "" && incoming.ExplicitRating != "" {
		out.ExplicitRating = incoming.ExplicitRating
		out.ScoringVersion = ""
	}
	switch in := incoming.Override; {
	case in == nil:
	case out.Override == nil:
		out.Override = in
		out.ScoringVersion = ""
	case in.At.After(out.Override.At) && !sameOverride(*in, *out.Override):
		notes = append(notes, fmt.Sprintf("%s: override %d (%q) replaced by %d (%q)",
			existing.Key(), out.Override.Score, out.Override.Note, in.Score, in.Note))
		out.Override = in
		out.ScoringVersion = ""
	}
	if out.Ensemble == nil {
		out.Ensemble = incoming.Ensemble
	}

	if incoming.HasScore() && (!out.HasScore() || incoming.ScoreSource.Priority() > out.ScoreSource.Priority()) {
		out.Score = incoming.Score
		out.ScoreSource = incoming.ScoreSource
		out.Confidence = incoming.Confidence
		out.NeedsReview = incoming.NeedsReview
		out.ReviewReason = incoming.ReviewReason
	}

	if !incoming.CreatedAt.IsZero() && (out.CreatedAt.IsZero() || incoming.CreatedAt.Before(out.CreatedAt)) {
		out.CreatedAt = incoming.CreatedAt
	}
	if incoming.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = incoming.UpdatedAt
	}
	return out, notes
}

func sameOverride(a, b model.Override) bool {
	return a.Score == b.Score && a.Note == b.Note && a.By == b.By
}

func longer(a, b string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(a)) > utf8.RuneCountInString(strings.TrimSpace(b))
}

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			key := strings.TrimSpace(s)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

// bestURL prefers the URL that carries more information: a parseable
// absolute URL over a fragment, one with a path over a bare domain, https
// over http, then the longer string.
func bestURL(a, b string) string {
	if urlScore(b) > urlScore(a) {
		return b
	}
	return a
}

func urlScore(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	score := 1
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		score += 100
		if strings.Trim(u.Path, "/") != "" {
			score += 50
		}
		if u.Scheme == "https" {
			score += 10
		}
	}
	return score*1000 + len(raw)
}
