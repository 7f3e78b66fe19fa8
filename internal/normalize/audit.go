package normalize

import (
	"sort"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// Rekey is a stored review whose identity would change under a candidate
// alias table.
type Rekey struct {
	From model.ReviewKey `json:"from"`
	To   model.ReviewKey `json:"to"`
}

// Collapse lists distinct stored reviews of one show that a candidate alias
// table would merge into a single identity. Each collapse must be checked by
// a person before the candidate table is adopted.
type Collapse struct {
	Into model.ReviewKey   `json:"into"`
	From []model.ReviewKey `json:"from"`
}

// AuditReport describes the effect of replacing one alias table with another.
type AuditReport struct {
	CurrentVersion   string     `json:"current_version"`
	CandidateVersion string     `json:"candidate_version"`
	Reviews          int        `json:"reviews"`
	Rekeys           []Rekey    `json:"rekeys,omitempty"`
	Collapses        []Collapse `json:"collapses,omitempty"`
}

// Clean reports whether the candidate table leaves every identity untouched.
func (r *AuditReport) Clean() bool {
	return len(r.Rekeys) == 0 && len(r.Collapses) == 0
}

// Audit re-resolves the raw outlet and critic names of stored reviews under
// a candidate normalizer without modifying anything. It is the dry-run gate
// for alias table changes.
func Audit(current, candidate *Normalizer, reviews []model.Review) *AuditReport {
	report := &AuditReport{
		CurrentVersion:   current.Aliases().Version(),
		CandidateVersion: candidate.Aliases().Version(),
		Reviews:          len(reviews),
	}

	groups := make(map[model.ReviewKey][]model.ReviewKey)
	for i := range reviews {
		r := &reviews[i]
		from := r.Key()
		to := model.ReviewKey{
			ShowID:   r.ShowID,
			OutletID: reresolve(current.Outlet, candidate.Outlet, r.OutletName, r.OutletID),
			CriticID: reresolve(current.Critic, candidate.Critic, r.CriticName, r.CriticID),
		}
		if to != from {
			report.Rekeys = append(report.Rekeys, Rekey{From: from, To: to})
		}
		groups[to] = append(groups[to], from)
	}

	for into, from := range groups {
		if len(from) < 2 {
			continue
		}
		sort.Slice(from, func(i, j int) bool { return from[i].String() < from[j].String() })
		report.Collapses = append(report.Collapses, Collapse{Into: into, From: from})
	}

	sort.Slice(report.Rekeys, func(i, j int) bool {
		return report.Rekeys[i].From.String() < report.Rekeys[j].From.String()
	})
	sort.Slice(report.Collapses, func(i, j int) bool {
		return report.Collapses[i].Into.String() < report.Collapses[j].Into.String()
	})
	return report
}

// reresolve returns the identity the candidate table gives a raw name. When
// both tables agree the stored id is kept, so identities assigned by
// ingest-time heuristics are not reported as changes.
func reresolve(current, candidate func(string) string, raw, stored string) string {
	if raw == "" {
		raw = stored
	}
	next := candidate(raw)
	if next == current(raw) {
		return stored
	}
	return next
}
