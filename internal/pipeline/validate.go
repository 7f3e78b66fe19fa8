package pipeline

import (
	"fmt"
	"sort"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// Issue is one data-integrity problem that rejects a review in full.
type Issue struct {
	Key     model.ReviewKey `json:"key"`
	Sources []string        `json:"sources,omitempty"`
	Problem string          `json:"problem"`
}

// ValidationSummary lists what was checked and everything rejected.
type ValidationSummary struct {
	Checked  int     `json:"checked"`
	Accepted int     `json:"accepted"`
	Rejected []Issue `json:"rejected,omitempty"`
}

// Validate returns every integrity problem with r. An empty result means the
// review may be written.
func Validate(r *model.Review) []string {
	var problems []string

	if r.ShowID == "" {
		problems = append(problems, "missing show id")
	}
	switch r.OutletID {
	case "":
		problems = append(problems, "missing outlet")
	case model.UnknownID:
		problems = append(problems, "outlet did not resolve to an identity")
	}
	switch r.CriticID {
	case "":
		problems = append(problems, "missing critic")
	case model.UnknownID:
		problems = append(problems, "critic did not resolve to an identity")
	}

	if o := r.Override; o != nil {
		if o.Note == "" {
			problems = append(problems, "manual override without a note")
		}
		if o.Score < 0 || o.Score > 100 {
			problems = append(problems, fmt.Sprintf("override score %d outside 0-100", o.Score))
		}
	}

	if r.Score != nil {
		if *r.Score < 0 || *r.Score > 100 {
			problems = append(problems, fmt.Sprintf("score %d outside 0-100", *r.Score))
		}
		if r.ScoreSource.Priority() == 0 {
			problems = append(problems, fmt.Sprintf("score without a known source %q", r.ScoreSource))
		}
	} else if r.ScoreSource != "" {
		problems = append(problems, "score source without a score")
	}

	if e := r.Ensemble; e != nil && len(e.Models) > 3 {
		problems = append(problems, fmt.Sprintf("%d model judgments, at most 3 allowed", len(e.Models)))
	}

	return problems
}

// ValidateAll checks every review and the uniqueness of each key within its
// show. Rejected reviews are left out of the returned slice; a duplicated key
// rejects every review carrying it.
func ValidateAll(reviews []model.Review) ([]model.Review, ValidationSummary) {
	sum := ValidationSummary{Checked: len(reviews)}

	seen := make(map[model.ReviewKey]int, len(reviews))
	for i := range reviews {
		seen[reviews[i].Key()]++
	}

	accepted := make([]model.Review, 0, len(reviews))
	for i := range reviews {
		r := &reviews[i]
		problems := Validate(r)
		if n := seen[r.Key()]; n > 1 {
			problems = append(problems, fmt.Sprintf("key appears %d times in show", n))
		}
		if len(problems) == 0 {
			accepted = append(accepted, *r)
			continue
		}
		for _, p := range problems {
			sum.Rejected = append(sum.Rejected, Issue{Key: r.Key(), Sources: r.Sources, Problem: p})
		}
	}
	sum.Accepted = len(accepted)

	sort.SliceStable(sum.Rejected, func(i, j int) bool {
		return sum.Rejected[i].Key.String() < sum.Rejected[j].Key.String()
	})
	return accepted, sum
}
